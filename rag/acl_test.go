package rag

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"
)

// =============================================================================
// 🧪 ACL 测试
// =============================================================================

func TestLoadACLRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "acl.yaml")
	content := `
default_allow: true
rules:
  - path_prefix: private/
    roles: [expert, admin]
  - path_prefix: private/hr/
    roles: [admin]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	rules, err := LoadACLRules(path)
	require.NoError(t, err)
	assert.True(t, rules.DefaultAllow)
	assert.Len(t, rules.Rules, 2)
}

func TestACLRules_Resolve(t *testing.T) {
	rules := &ACLRules{
		DefaultAllow: true,
		Rules: []ACLRule{
			{PathPrefix: "private/", Roles: []string{"expert", "admin"}},
			{PathPrefix: "private/hr/", Roles: []string{"admin"}},
		},
	}

	// 未命中：default_allow → 通配
	assert.True(t, rules.Resolve("public/intro.txt").IsWildcard())

	// 命中一般规则
	rs := rules.Resolve("private/gates.txt")
	assert.True(t, rs.Contains("expert"))
	assert.False(t, rs.Contains("user"))

	// 最长前缀优先
	rs = rules.Resolve("private/hr/salary.txt")
	assert.True(t, rs.Contains("admin"))
	assert.False(t, rs.Contains("expert"))

	// default_allow=false → 未命中即空集
	rules.DefaultAllow = false
	assert.True(t, rules.Resolve("public/intro.txt").IsEmpty())
}

func candidateWithRoles(id, roles string) Candidate {
	return Candidate{Chunk: Chunk{ID: id, AllowedRoles: roles}}
}

func TestACLFilter_Disabled(t *testing.T) {
	filter := NewACLFilter(false, zap.NewNop())

	in := []Candidate{
		candidateWithRoles("c1", ""),
		candidateWithRoles("c2", "*"),
		candidateWithRoles("c3", "admin"),
	}

	// 关闭时恒等函数，allowed_roles 无关紧要
	out := filter.Filter(in, "nobody")
	assert.Equal(t, in, out)
}

func TestACLFilter_Enabled(t *testing.T) {
	filter := NewACLFilter(true, zap.NewNop())

	in := []Candidate{
		candidateWithRoles("c1", "*"),
		candidateWithRoles("c2", ""),
		candidateWithRoles("c3", "user|expert"),
		candidateWithRoles("c4", "admin"),
	}

	out := filter.Filter(in, "expert")
	ids := make([]string, 0, len(out))
	for _, c := range out {
		ids = append(ids, c.Chunk.ID)
	}
	// 保序：通配包含、空集排除、成员包含
	assert.Equal(t, []string{"c1", "c3"}, ids)
}

func TestACLFilter_PureNoMutation(t *testing.T) {
	filter := NewACLFilter(true, zap.NewNop())

	in := []Candidate{candidateWithRoles("c1", "user|expert")}
	_ = filter.Filter(in, "user")

	assert.Equal(t, "user|expert", in[0].Chunk.AllowedRoles)
}

func TestACLFilter_FailClosedProperty(t *testing.T) {
	filter := NewACLFilter(true, zap.NewNop())

	rapid.Check(t, func(t *rapid.T) {
		role := rapid.StringMatching(`[a-z]{1,8}`).Draw(t, "role")

		// 空 allowed_roles 对任何角色都不可见
		out := filter.Filter([]Candidate{candidateWithRoles("c", "")}, role)
		assert.Empty(t, out)

		// 通配对任何角色都可见
		out = filter.Filter([]Candidate{candidateWithRoles("c", "*")}, role)
		assert.Len(t, out, 1)
	})
}

func TestACLFilter_OrderPreservingProperty(t *testing.T) {
	filter := NewACLFilter(true, zap.NewNop())

	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 20).Draw(t, "n")
		roleValues := []string{"", "*", "user", "expert", "user|expert"}

		in := make([]Candidate, 0, n)
		for i := 0; i < n; i++ {
			roles := rapid.SampledFrom(roleValues).Draw(t, "roles")
			in = append(in, candidateWithRoles(ChunkID("d", i), roles))
		}

		out := filter.Filter(in, "user")

		// 输出是输入的保序子序列
		j := 0
		for _, c := range out {
			found := false
			for ; j < len(in); j++ {
				if in[j].Chunk.ID == c.Chunk.ID {
					found = true
					j++
					break
				}
			}
			assert.True(t, found, "output reordered or invented candidates")
		}
	})
}
