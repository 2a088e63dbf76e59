package rag

import (
	"fmt"
	"sort"
	"strings"
)

// =============================================================================
// 📄 数据模型
// =============================================================================

// 角色编码常量。AllowedRoles 持久化为分隔字符串，这只是序列化细节；
// 运行时一律通过 RoleSet 操作。
const (
	// WildcardRoles 表示对所有角色可见
	WildcardRoles = "*"
	// RoleDelimiter 角色集合的序列化分隔符
	RoleDelimiter = "|"
)

// Chunk 检索的最小单元：一段文本加位置与访问元数据。
// 同一 doc_id 下的 Chunk 按 Order 全序排列，用于邻居窗口查询。
// Chunk 在切分时创建，之后不可变；重建索引时整体替换。
type Chunk struct {
	ID           string `json:"id"`
	DocID        string `json:"doc_id"`
	DocName      string `json:"doc_name"`
	Text         string `json:"text"`
	Order        int    `json:"order"`
	StartChar    int    `json:"start_char"`
	EndChar      int    `json:"end_char"`
	Language     string `json:"language,omitempty"` // ru | en | mixed | ""
	Category     string `json:"category,omitempty"`
	AllowedRoles string `json:"allowed_roles"` // "*"、""（对任何人不可见）或 "a|b"
	SectionTitle string `json:"section_title,omitempty"`
}

// ChunkID 由 doc_id 和序号确定性派生，未变更的输入重建索引后 ID 不变。
func ChunkID(docID string, order int) string {
	return fmt.Sprintf("%s::chunk_%d", docID, order)
}

// Roles 返回该 Chunk 的角色集合视图。
func (c Chunk) Roles() RoleSet {
	return ParseRoles(c.AllowedRoles)
}

// =============================================================================
// 🔐 角色集合
// =============================================================================

// RoleSet 是 ACL 边界上的显式集合类型。三种状态：
// 通配（所有角色可见）、空（任何人不可见）、具名角色集合。
type RoleSet struct {
	wildcard bool
	roles    map[string]struct{}
}

// ParseRoles 解析序列化的角色字符串。
func ParseRoles(encoded string) RoleSet {
	encoded = strings.TrimSpace(encoded)
	if encoded == WildcardRoles {
		return RoleSet{wildcard: true}
	}
	rs := RoleSet{roles: make(map[string]struct{})}
	if encoded == "" {
		return rs
	}
	for _, r := range strings.Split(encoded, RoleDelimiter) {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		rs.roles[r] = struct{}{}
	}
	return rs
}

// NewRoleSet 从角色名列表构造集合。
func NewRoleSet(roles ...string) RoleSet {
	rs := RoleSet{roles: make(map[string]struct{})}
	for _, r := range roles {
		r = strings.TrimSpace(r)
		if r == WildcardRoles {
			return RoleSet{wildcard: true}
		}
		if r != "" {
			rs.roles[r] = struct{}{}
		}
	}
	return rs
}

// WildcardRoleSet 返回对所有角色可见的集合。
func WildcardRoleSet() RoleSet {
	return RoleSet{wildcard: true}
}

// IsWildcard 是否对所有角色可见。
func (rs RoleSet) IsWildcard() bool { return rs.wildcard }

// IsEmpty 是否对任何人都不可见。
func (rs RoleSet) IsEmpty() bool { return !rs.wildcard && len(rs.roles) == 0 }

// Contains 判断角色是否在集合内（通配恒真，空集恒假）。
func (rs RoleSet) Contains(role string) bool {
	if rs.wildcard {
		return true
	}
	_, ok := rs.roles[role]
	return ok
}

// String 序列化回分隔字符串形式。
func (rs RoleSet) String() string {
	if rs.wildcard {
		return WildcardRoles
	}
	if len(rs.roles) == 0 {
		return ""
	}
	names := make([]string, 0, len(rs.roles))
	for r := range rs.roles {
		names = append(names, r)
	}
	sort.Strings(names)
	return strings.Join(names, RoleDelimiter)
}

// =============================================================================
// 🎯 检索候选
// =============================================================================

// Candidate 单次查询内的打分 Chunk。字段显式而非开放 map，
// 便于编译期检查每个阶段写入的分数。查询结束即丢弃，从不持久化。
type Candidate struct {
	Chunk Chunk `json:"chunk"`

	Score        float64 `json:"score"`         // 融合后的混合分数
	DenseScore   float64 `json:"dense_score"`   // 1/(1+distance)，约在 [0,1]
	LexicalScore float64 `json:"lexical_score"` // 搜索引擎原始分数，无界
	LexicalNorm  float64 `json:"lexical_norm"`  // 按 max-lex 归一化后的词法分数
	RerankScore  float64 `json:"rerank_score"`

	CompressedContext string `json:"compressed_context,omitempty"`
}

// RawDocument 摄取侧的原始文档，切分前的输入。
type RawDocument struct {
	ID           string
	Path         string
	Name         string
	Text         string
	Category     string
	AllowedRoles RoleSet
}

// QueryPlan 一次用户查询派生出的检索子查询集合。
type QueryPlan struct {
	Original           string
	Subqueries         []string
	Variations         []string
	HypotheticalAnswer string
	Mode               string // single | multi
}

// RetrievalQueries 返回 multi 模式下要独立执行检索的全部查询串。
func (p QueryPlan) RetrievalQueries() []string {
	queries := make([]string, 0, len(p.Subqueries)+len(p.Variations)+1)
	seen := make(map[string]struct{})
	add := func(q string) {
		q = strings.TrimSpace(q)
		if q == "" {
			return
		}
		if _, ok := seen[q]; ok {
			return
		}
		seen[q] = struct{}{}
		queries = append(queries, q)
	}
	for _, q := range p.Subqueries {
		add(q)
	}
	for _, q := range p.Variations {
		add(q)
	}
	add(p.HypotheticalAnswer)
	if len(queries) == 0 {
		add(p.Original)
	}
	return queries
}

// CombinedQuery single 模式下把子查询、变体与假设答案折叠进一个查询串。
func (p QueryPlan) CombinedQuery() string {
	var b strings.Builder
	b.WriteString(p.Original)
	for i, sq := range p.Subqueries {
		if strings.TrimSpace(sq) == p.Original {
			continue
		}
		fmt.Fprintf(&b, "\nПодвопрос %d: %s", i+1, sq)
	}
	for i, v := range p.Variations {
		fmt.Fprintf(&b, "\nВариант %d: %s", i+1, v)
	}
	if strings.TrimSpace(p.HypotheticalAnswer) != "" {
		fmt.Fprintf(&b, "\nГипотетический ответ: %s", p.HypotheticalAnswer)
	}
	return b.String()
}
