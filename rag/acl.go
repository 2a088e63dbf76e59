package rag

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🔐 访问控制
// =============================================================================

// ACLRule 一条路径前缀到角色集合的映射
type ACLRule struct {
	PathPrefix string   `yaml:"path_prefix" json:"path_prefix"`
	Roles      []string `yaml:"roles" json:"roles"`
}

// ACLRules 摄取时使用的声明式规则表。
// 规则只在摄取阶段解析进 Chunk 的 AllowedRoles，查询期不再查表。
type ACLRules struct {
	Rules        []ACLRule `yaml:"rules" json:"rules"`
	DefaultAllow bool      `yaml:"default_allow" json:"default_allow"` // 未命中规则时：true=所有角色可见，false=不可见
}

// LoadACLRules 从 YAML 文件加载规则表。
func LoadACLRules(path string) (*ACLRules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read acl rules: %w", err)
	}
	var rules ACLRules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("parse acl rules: %w", err)
	}
	return &rules, nil
}

// Resolve 按最长前缀匹配返回文档路径对应的角色集合。
// 未命中任何规则时按 DefaultAllow 决定通配还是空集。
func (a *ACLRules) Resolve(path string) RoleSet {
	norm := filepath.ToSlash(path)

	bestLen := -1
	var best RoleSet
	for _, rule := range a.Rules {
		prefix := filepath.ToSlash(rule.PathPrefix)
		if strings.HasPrefix(norm, prefix) && len(prefix) > bestLen {
			bestLen = len(prefix)
			best = NewRoleSet(rule.Roles...)
		}
	}

	if bestLen >= 0 {
		return best
	}
	if a.DefaultAllow {
		return WildcardRoleSet()
	}
	return NewRoleSet()
}

// ACLFilter 查询期的角色可见性过滤器。
// 纯函数、保序，关闭时是恒等函数；对 AllowedRoles 没有任何写操作。
type ACLFilter struct {
	enabled bool
	logger  *zap.Logger
}

// NewACLFilter 创建运行期过滤器。
func NewACLFilter(enabled bool, logger *zap.Logger) *ACLFilter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ACLFilter{
		enabled: enabled,
		logger:  logger.With(zap.String("component", "acl_filter")),
	}
}

// Enabled 过滤是否开启。
func (f *ACLFilter) Enabled() bool { return f.enabled }

// Filter 按角色过滤候选：通配无条件包含，空集无条件排除，
// 否则按成员关系判断。空角色集合 fail-closed。
func (f *ACLFilter) Filter(candidates []Candidate, userRole string) []Candidate {
	if !f.enabled {
		return candidates
	}

	filtered := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		roles := c.Chunk.Roles()
		if roles.IsWildcard() {
			filtered = append(filtered, c)
			continue
		}
		if roles.IsEmpty() {
			continue
		}
		if roles.Contains(userRole) {
			filtered = append(filtered, c)
		}
	}

	f.logger.Info("acl filter applied",
		zap.String("role", userRole),
		zap.Int("before", len(candidates)),
		zap.Int("after", len(filtered)))

	return filtered
}
