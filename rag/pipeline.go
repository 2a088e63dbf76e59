package rag

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// =============================================================================
// 🚇 查询流水线
// =============================================================================

// PipelineConfig 流水线编排配置
type PipelineConfig struct {
	// CombineMode single | multi，未知值告警后回退 single
	CombineMode string `yaml:"combine_mode" json:"combine_mode"`
	// UseDecomposition 是否启用查询分解
	UseDecomposition bool `yaml:"use_decomposition" json:"use_decomposition"`
	// UseEnhancement 是否启用查询增强
	UseEnhancement bool `yaml:"use_enhancement" json:"use_enhancement"`
	// EmbedBatchSize 重建索引时的向量化批大小
	EmbedBatchSize int `yaml:"embed_batch_size" json:"embed_batch_size"`
}

// DefaultPipelineConfig 返回默认流水线配置
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		CombineMode:      CombineModeSingle,
		UseDecomposition: true,
		UseEnhancement:   true,
		EmbedBatchSize:   32,
	}
}

// PipelineMetrics 流水线阶段观测。internal/metrics 提供 Prometheus 实现。
type PipelineMetrics interface {
	RecordQuery(status string, duration time.Duration)
	RecordStage(stage, status string, duration time.Duration)
	RecordCandidates(stage string, count int)
}

// nopMetrics 空实现
type nopMetrics struct{}

func (nopMetrics) RecordQuery(string, time.Duration)         {}
func (nopMetrics) RecordStage(string, string, time.Duration) {}
func (nopMetrics) RecordCandidates(string, int)              {}

// Pipeline 把各阶段组件显式装配成一条查询流水线。
// 所有依赖在构造时注入，之后只读；单个查询内没有并发重叠，
// 仅稠密/词法两路检索并行。
type Pipeline struct {
	cfg PipelineConfig

	ingestor   *Ingestor
	splitter   *Splitter
	embedder   Embedder
	store      ChunkStore
	index      LexicalIndex
	hybrid     *HybridSearcher
	reranker   *Reranker
	acl        *ACLFilter
	windows    *WindowAssembler
	compressor *Compressor
	decomposer *Decomposer
	enhancer   *Enhancer
	answers    *AnswerGenerator

	metrics PipelineMetrics
	logger  *zap.Logger
}

// PipelineDeps 流水线依赖。没有任何单例：调用方构造并传入全部句柄。
type PipelineDeps struct {
	Ingestor   *Ingestor
	Splitter   *Splitter
	Embedder   Embedder
	Store      ChunkStore
	Index      LexicalIndex
	Hybrid     *HybridSearcher
	Reranker   *Reranker
	ACL        *ACLFilter
	Windows    *WindowAssembler
	Compressor *Compressor
	Decomposer *Decomposer
	Enhancer   *Enhancer
	Answers    *AnswerGenerator
	Metrics    PipelineMetrics
}

// NewPipeline 装配流水线并急切检查词法引擎可达性，
// 搜索引擎不可达时拒绝启动。
func NewPipeline(ctx context.Context, cfg PipelineConfig, deps PipelineDeps, logger *zap.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "pipeline"))

	switch cfg.CombineMode {
	case CombineModeSingle, CombineModeMulti:
	default:
		logger.Warn("unknown combine mode, falling back to single",
			zap.String("mode", cfg.CombineMode))
		cfg.CombineMode = CombineModeSingle
	}
	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = 32
	}

	if deps.Index == nil {
		return nil, fmt.Errorf("lexical index is required")
	}
	if err := deps.Index.Ping(ctx); err != nil {
		return nil, fmt.Errorf("lexical index health check: %w", err)
	}

	metrics := deps.Metrics
	if metrics == nil {
		metrics = nopMetrics{}
	}

	return &Pipeline{
		cfg:        cfg,
		ingestor:   deps.Ingestor,
		splitter:   deps.Splitter,
		embedder:   deps.Embedder,
		store:      deps.Store,
		index:      deps.Index,
		hybrid:     deps.Hybrid,
		reranker:   deps.Reranker,
		acl:        deps.ACL,
		windows:    deps.Windows,
		compressor: deps.Compressor,
		decomposer: deps.Decomposer,
		enhancer:   deps.Enhancer,
		answers:    deps.Answers,
		metrics:    metrics,
		logger:     logger,
	}, nil
}

// Reindex 独占式重建：摄取 → 切分 → 向量化 → 清空两个索引 → 重建。
// 完成前不对外服务查询，不存在半重建状态。
func (p *Pipeline) Reindex(ctx context.Context) error {
	started := time.Now()

	docs, err := p.ingestor.LoadDocuments()
	if err != nil {
		return fmt.Errorf("load documents: %w", err)
	}

	chunks := make([]Chunk, 0)
	for _, doc := range docs {
		chunks = append(chunks, p.splitter.Split(doc)...)
	}
	if len(chunks) == 0 {
		return fmt.Errorf("no chunks produced from %d documents", len(docs))
	}

	vectors, err := p.embedChunks(ctx, chunks)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}

	if err := p.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear chunk store: %w", err)
	}
	if err := p.index.Clear(ctx); err != nil {
		return fmt.Errorf("clear lexical index: %w", err)
	}

	if err := p.store.Index(ctx, chunks, vectors); err != nil {
		return fmt.Errorf("index chunk store: %w", err)
	}
	if err := p.index.Index(ctx, chunks); err != nil {
		return fmt.Errorf("index lexical index: %w", err)
	}

	p.logger.Info("reindex completed",
		zap.Int("documents", len(docs)),
		zap.Int("chunks", len(chunks)),
		zap.Duration("took", time.Since(started)))

	return nil
}

// embedChunks 分批并发向量化
func (p *Pipeline) embedChunks(ctx context.Context, chunks []Chunk) ([][]float64, error) {
	vectors := make([][]float64, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for start := 0; start < len(chunks); start += p.cfg.EmbedBatchSize {
		end := start + p.cfg.EmbedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		start, end := start, end

		g.Go(func() error {
			texts := make([]string, 0, end-start)
			for _, c := range chunks[start:end] {
				texts = append(texts, c.Text)
			}
			batch, err := p.embedder.Embed(gctx, texts)
			if err != nil {
				return err
			}
			if len(batch) != len(texts) {
				return fmt.Errorf("embedder returned %d vectors for %d texts", len(batch), len(texts))
			}
			copy(vectors[start:end], batch)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// Query 处理一条用户查询，完整走完检索/融合/重排/ACL/窗口/压缩/回答。
func (p *Pipeline) Query(ctx context.Context, question, userRole string) (Answer, error) {
	started := time.Now()
	answer, err := p.query(ctx, question, userRole)
	status := "ok"
	if err != nil {
		status = "error"
	} else if answer.NoData {
		status = "no_data"
	}
	p.metrics.RecordQuery(status, time.Since(started))
	return answer, err
}

func (p *Pipeline) query(ctx context.Context, question, userRole string) (Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{Text: p.answers.cfg.NoDataResponse, NoData: true}, nil
	}

	plan := p.buildPlan(ctx, question)

	filter := SearchFilter{
		Language: DetectLanguage(question),
		Category: DetectCategory(question),
	}

	// 检索 + 融合
	candidates, err := p.retrieve(ctx, plan, filter)
	if err != nil {
		return Answer{}, err
	}
	p.metrics.RecordCandidates("fusion", len(candidates))

	if len(candidates) == 0 {
		p.logger.Info("no candidates retrieved", zap.String("question", question))
		return Answer{Text: p.answers.cfg.NoDataResponse, NoData: true}, nil
	}

	// 重排
	reranked, err := p.timedStage(ctx, "rerank", func(ctx context.Context) ([]Candidate, error) {
		return p.reranker.Rerank(ctx, question, candidates)
	})
	if err != nil {
		return Answer{}, err
	}
	p.metrics.RecordCandidates("rerank", len(reranked))

	// ACL 过滤
	visible := p.acl.Filter(reranked, userRole)
	p.metrics.RecordCandidates("acl", len(visible))
	if len(visible) == 0 {
		return Answer{Text: p.answers.cfg.NoDataResponse, NoData: true}, nil
	}

	// 窗口装配
	windows, err := p.windows.Assemble(ctx, visible)
	if err != nil {
		return Answer{}, fmt.Errorf("assemble windows: %w", err)
	}

	// 压缩
	contexts := make([]CompressedContext, 0, len(windows))
	for _, w := range windows {
		if len(w.Chunks) == 0 {
			continue
		}
		compressed, err := p.compressor.Compress(ctx, question, w.Chunks)
		if err != nil {
			return Answer{}, fmt.Errorf("compress window: %w", err)
		}
		contexts = append(contexts, CompressedContext{
			DocName: w.Chunks[0].DocName,
			Text:    compressed,
		})
	}

	// 回答
	return p.answers.Generate(ctx, question, contexts)
}

// buildPlan 组装查询计划：分解 + 增强，全部软失败。
func (p *Pipeline) buildPlan(ctx context.Context, question string) QueryPlan {
	plan := QueryPlan{
		Original: question,
		Mode:     p.cfg.CombineMode,
	}

	if p.cfg.UseDecomposition && p.decomposer != nil {
		dec := p.decomposer.Decompose(ctx, question)
		plan.Subqueries = dec.Subqueries
		if dec.Fallback {
			p.logger.Debug("decomposition fell back",
				zap.String("reason", dec.Reason))
		}
	} else {
		plan.Subqueries = []string{question}
	}

	if p.cfg.UseEnhancement && p.enhancer != nil {
		enh := p.enhancer.Enhance(ctx, question)
		if enh.Failed {
			p.logger.Debug("enhancement fell back",
				zap.String("reason", enh.Reason))
		} else {
			plan.Variations = enh.Variations
			plan.HypotheticalAnswer = enh.HypotheticalAnswer
		}
	}

	return plan
}

// retrieve 按组合模式执行检索。
// single：一条组合查询单次检索；multi：每个子查询/变体独立检索，
// 汇总后按 chunk id 去重（保留最高融合分）。
func (p *Pipeline) retrieve(ctx context.Context, plan QueryPlan, filter SearchFilter) ([]Candidate, error) {
	queries := []string{plan.CombinedQuery()}
	if plan.Mode == CombineModeMulti {
		queries = plan.RetrievalQueries()
	}

	pooled := make([]Candidate, 0)
	for _, q := range queries {
		hits, err := p.timedStage(ctx, "hybrid_search", func(ctx context.Context) ([]Candidate, error) {
			return p.hybrid.Search(ctx, q, filter)
		})
		if err != nil {
			return nil, err
		}
		pooled = append(pooled, hits...)
	}

	if len(queries) == 1 {
		return pooled, nil
	}
	return dedupCandidates(pooled), nil
}

// dedupCandidates 跨检索轮次按 chunk id 去重，保留最高融合分。
func dedupCandidates(candidates []Candidate) []Candidate {
	best := make(map[string]Candidate)
	order := make([]string, 0, len(candidates))

	for _, c := range candidates {
		prev, ok := best[c.Chunk.ID]
		if !ok {
			best[c.Chunk.ID] = c
			order = append(order, c.Chunk.ID)
			continue
		}
		if c.Score > prev.Score {
			best[c.Chunk.ID] = c
		}
	}

	out := make([]Candidate, 0, len(best))
	for _, id := range order {
		out = append(out, best[id])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// timedStage 带阶段指标的执行包装
func (p *Pipeline) timedStage(ctx context.Context, stage string, fn func(context.Context) ([]Candidate, error)) ([]Candidate, error) {
	started := time.Now()
	out, err := fn(ctx)
	status := "ok"
	if err != nil {
		status = "error"
	}
	p.metrics.RecordStage(stage, status, time.Since(started))
	return out, err
}
