// Command askbase runs the knowledge base assistant: optional reindex,
// interactive authentication, and a query REPL.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/askbase/askbase/auth"
	"github.com/askbase/askbase/config"
	"github.com/askbase/askbase/internal/metrics"
	"github.com/askbase/askbase/llm"
	"github.com/askbase/askbase/llm/embedding"
	"github.com/askbase/askbase/llm/rerank"
	"github.com/askbase/askbase/rag"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to config YAML")
		reindex    = flag.Bool("reindex", false, "rebuild both indexes before serving")
		userRole   = flag.String("user-role", "", "role to authenticate as")
		password   = flag.String("password", "", "password for the role")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := buildLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger, *reindex, *userRole, *password); err != nil {
		logger.Fatal("askbase failed", zap.Error(err))
	}
}

func buildLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}

func run(cfg *config.Config, logger *zap.Logger, reindex bool, userRole, password string) error {
	ctx := context.Background()

	role, err := authenticate(cfg, logger, userRole, password)
	if err != nil {
		return err
	}

	pipeline, err := buildPipeline(ctx, cfg, logger)
	if err != nil {
		return err
	}

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, logger)
	}

	if reindex {
		logger.Info("reindex requested")
		if err := pipeline.Reindex(ctx); err != nil {
			return fmt.Errorf("reindex: %w", err)
		}
	}

	return repl(ctx, pipeline, role, logger)
}

// authenticate ACL 关闭时跳过认证，以 anonymous/user 身份进入。
// 开启时按角色校验密码，最多尝试 MaxAttempts 次。
func authenticate(cfg *config.Config, logger *zap.Logger, userRole, password string) (string, error) {
	if !cfg.ACL.Enabled {
		logger.Info("acl disabled, continuing as anonymous user")
		return "user", nil
	}
	if userRole == "" {
		return "", fmt.Errorf("--user-role is required when acl is enabled")
	}

	store, err := auth.NewStore(cfg.Auth.DBPath, logger)
	if err != nil {
		return "", err
	}
	defer store.Close()

	required, err := store.PasswordRequired(userRole)
	if err != nil {
		return "", err
	}
	if !required {
		if _, err := store.Authenticate(userRole, ""); err != nil {
			return "", err
		}
		return userRole, nil
	}

	reader := bufio.NewReader(os.Stdin)
	for attempt := 1; attempt <= cfg.Auth.MaxAttempts; attempt++ {
		pwd := password
		if pwd == "" {
			fmt.Printf("Password for role %q: ", userRole)
			line, err := reader.ReadString('\n')
			if err != nil {
				return "", fmt.Errorf("read password: %w", err)
			}
			pwd = strings.TrimSpace(line)
		}

		if _, err := store.Authenticate(userRole, pwd); err == nil {
			return userRole, nil
		}

		logger.Warn("authentication failed",
			zap.String("role", userRole),
			zap.Int("attempt", attempt))
		password = "" // flag 密码错了就转交互输入
	}

	return "", fmt.Errorf("authentication failed after %d attempts", cfg.Auth.MaxAttempts)
}

// buildPipeline 按配置装配全部组件，显式注入依赖。
func buildPipeline(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*rag.Pipeline, error) {
	// 向量化
	embedder, err := embedding.New(cfg.Embedding.Config)
	if err != nil {
		return nil, err
	}
	var ragEmbedder rag.Embedder = embedder
	if cfg.Embedding.CacheEnabled {
		cached, err := embedding.NewCachedProvider(embedder, cfg.Embedding.Cache, logger)
		if err != nil {
			return nil, err
		}
		ragEmbedder = cached
	}

	// 生成
	generator, err := llm.New(cfg.LLM)
	if err != nil {
		return nil, err
	}

	// 打分
	rerankProvider, err := rerank.New(cfg.RerankEngine)
	if err != nil {
		return nil, err
	}
	scorer := rerank.NewScorer(rerankProvider)

	// 存储
	var store rag.ChunkStore
	switch cfg.Store.Backend {
	case "qdrant":
		store = rag.NewQdrantStore(cfg.Store.Qdrant, logger)
	default:
		store = rag.NewInMemoryChunkStore(logger)
	}

	var index rag.LexicalIndex
	switch cfg.Lexical.Backend {
	case "elasticsearch":
		index = rag.NewElasticIndex(cfg.Lexical.Elasticsearch, logger)
	default:
		index = rag.NewInMemoryLexicalIndex(cfg.Lexical.BM25, logger)
	}

	// ACL 规则（摄取侧）
	var aclRules *rag.ACLRules
	if cfg.ACL.Enabled {
		aclRules, err = rag.LoadACLRules(cfg.ACL.RulesPath)
		if err != nil {
			return nil, err
		}
	}

	splitter, err := rag.NewSplitter(cfg.Chunking, logger)
	if err != nil {
		return nil, err
	}

	dense := rag.NewDenseRetriever(store, ragEmbedder, logger)
	lexical := rag.NewLexicalRetriever(index, logger)

	deps := rag.PipelineDeps{
		Ingestor:   rag.NewIngestor(cfg.Ingest, aclRules, logger),
		Splitter:   splitter,
		Embedder:   ragEmbedder,
		Store:      store,
		Index:      index,
		Hybrid:     rag.NewHybridSearcher(cfg.Hybrid, dense, lexical, logger),
		Reranker:   rag.NewReranker(cfg.Rerank, scorer, logger),
		ACL:        rag.NewACLFilter(cfg.ACL.Enabled, logger),
		Windows:    rag.NewWindowAssembler(cfg.Window, store, logger),
		Compressor: rag.NewCompressor(cfg.Compressor, generator, logger),
		Decomposer: rag.NewDecomposer(cfg.Decomposer, generator, logger),
		Enhancer:   rag.NewEnhancer(cfg.Enhancer, generator, logger),
		Answers:    rag.NewAnswerGenerator(cfg.Answer, generator, logger),
		Metrics:    metrics.NewCollector("askbase", nil, logger),
	}

	return rag.NewPipeline(ctx, cfg.Pipeline, deps, logger)
}

func serveMetrics(addr string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.Info("serving metrics", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Warn("metrics server stopped", zap.Error(err))
	}
}

// repl 一行一个问题。exit/quit 退出；单个问题出错只记日志，会话继续。
func repl(ctx context.Context, pipeline *rag.Pipeline, role string, logger *zap.Logger) error {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 64*1024)

	fmt.Println("askbase ready. Type a question, or exit/quit to leave.")
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}
		if question == "exit" || question == "quit" {
			break
		}

		answer, err := pipeline.Query(ctx, question, role)
		if err != nil {
			logger.Error("query failed", zap.Error(err))
			fmt.Println("Произошла ошибка, попробуйте ещё раз.")
			continue
		}

		fmt.Println(answer.Text)
		if len(answer.Citations) > 0 {
			fmt.Printf("Источники: %s\n", strings.Join(answer.Citations, ", "))
		}
	}

	return scanner.Err()
}
