package rag

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// =============================================================================
// 📥 文档摄取
// =============================================================================

// IngestConfig 摄取配置
type IngestConfig struct {
	// DocsDir 语料目录，递归遍历
	DocsDir string `yaml:"docs_dir" json:"docs_dir"`
	// Extensions 接受的扩展名。docx/pdf 等格式由外部转换器预处理。
	Extensions []string `yaml:"extensions" json:"extensions"`
}

// DefaultIngestConfig 返回默认摄取配置
func DefaultIngestConfig() IngestConfig {
	return IngestConfig{
		DocsDir:    "./docs",
		Extensions: []string{".txt", ".md"},
	}
}

// docNamespace 从相对路径确定性派生 doc_id 的 UUID 命名空间。
// 未变更的输入重建索引后 doc_id（进而 chunk id）保持稳定。
var docNamespace = uuid.MustParse("7c9e6679-7425-40de-944b-e07fc1f90ae7")

// DocID 由语料内相对路径确定性派生文档 ID。
func DocID(relPath string) string {
	return uuid.NewSHA1(docNamespace, []byte(filepath.ToSlash(relPath))).String()
}

// Ingestor 遍历语料目录，读取文本文件并生成 RawDocument：
// 统一换行、去空行、按文件名推断类别、按 ACL 规则表解析角色。
type Ingestor struct {
	cfg    IngestConfig
	acl    *ACLRules
	logger *zap.Logger
}

// NewIngestor 创建摄取器。acl 可为 nil，此时所有文档对所有角色可见。
func NewIngestor(cfg IngestConfig, acl *ACLRules, logger *zap.Logger) *Ingestor {
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = []string{".txt", ".md"}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingestor{
		cfg:    cfg,
		acl:    acl,
		logger: logger.With(zap.String("component", "ingestor")),
	}
}

// LoadDocuments 读取语料目录下的全部文档。
func (in *Ingestor) LoadDocuments() ([]RawDocument, error) {
	root := in.cfg.DocsDir

	var docs []RawDocument
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !in.accepts(path) {
			return nil
		}

		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = path
		}

		text := NormalizeText(string(raw))
		if text == "" {
			in.logger.Warn("skipping empty document", zap.String("path", path))
			return nil
		}

		name := strings.TrimSuffix(d.Name(), filepath.Ext(d.Name()))
		roles := WildcardRoleSet()
		if in.acl != nil {
			roles = in.acl.Resolve(rel)
		}

		docs = append(docs, RawDocument{
			ID:           DocID(rel),
			Path:         rel,
			Name:         name,
			Text:         text,
			Category:     DetectCategory(d.Name()),
			AllowedRoles: roles,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk docs dir %s: %w", root, err)
	}

	in.logger.Info("documents loaded",
		zap.String("dir", root),
		zap.Int("count", len(docs)))

	return docs, nil
}

func (in *Ingestor) accepts(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, allowed := range in.cfg.Extensions {
		if ext == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}

// NormalizeText 统一换行为 \n 并去掉空行。
func NormalizeText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	lines := make([]string, 0)
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, strings.TrimRight(line, " \t"))
	}
	return strings.Join(lines, "\n")
}
