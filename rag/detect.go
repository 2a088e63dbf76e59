package rag

import (
	"strings"
	"unicode"
)

// =============================================================================
// 🔍 语言与类别检测
// =============================================================================

// 语言标签
const (
	LanguageRU    = "ru"
	LanguageEN    = "en"
	LanguageMixed = "mixed"
)

// CategoryGeneral 通用类别，检索时不参与类别过滤
const CategoryGeneral = "general"

// mixedRatioThreshold 两种文字数量之比超过该值视为混合文本
const mixedRatioThreshold = 0.6

// DetectLanguage 按西里尔/拉丁字母计数判断文本语言。
// 两种文字都显著出现（min/max > 0.6）返回 mixed；没有字母返回空串。
func DetectLanguage(text string) string {
	var cyrillic, latin int
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Cyrillic, r):
			cyrillic++
		case unicode.Is(unicode.Latin, r):
			latin++
		}
	}

	if cyrillic == 0 && latin == 0 {
		return ""
	}
	if cyrillic > 0 && latin > 0 {
		lo, hi := cyrillic, latin
		if lo > hi {
			lo, hi = hi, lo
		}
		if float64(lo)/float64(hi) > mixedRatioThreshold {
			return LanguageMixed
		}
	}
	if cyrillic >= latin {
		return LanguageRU
	}
	return LanguageEN
}

// ContainsCyrillic 文本是否含西里尔字母。
// 增强阶段用它做变体与原始查询的语言一致性检查。
func ContainsCyrillic(text string) bool {
	for _, r := range text {
		if unicode.Is(unicode.Cyrillic, r) {
			return true
		}
	}
	return false
}

// SameScript 判断两段文本的主文字是否一致（西里尔 vs 其它）。
func SameScript(a, b string) bool {
	return ContainsCyrillic(a) == ContainsCyrillic(b)
}

// categoryKeywords 类别关键词（俄/英）。按文件名匹配。
var categoryKeywords = []struct {
	category string
	keywords []string
}{
	{"gate", []string{"ворота", "gate"}},
	{"channel", []string{"канал", "channel"}},
	{"center", []string{"центр", "center", "centre"}},
}

// DetectCategory 根据文件名关键词推断文档类别，未命中返回 general。
func DetectCategory(name string) string {
	lower := strings.ToLower(name)
	for _, ck := range categoryKeywords {
		for _, kw := range ck.keywords {
			if strings.Contains(lower, kw) {
				return ck.category
			}
		}
	}
	return CategoryGeneral
}

// LanguageMatches 检索端语言过滤语义：目标语言或 mixed 均可见；
// 目标为 mixed 或空时不过滤。
func LanguageMatches(chunkLang, target string) bool {
	if target == "" || target == LanguageMixed {
		return true
	}
	return chunkLang == target || chunkLang == LanguageMixed
}

// CategoryMatches 检索端类别过滤语义：目标为 general 或空时不过滤。
func CategoryMatches(chunkCat, target string) bool {
	if target == "" || target == CategoryGeneral {
		return true
	}
	return chunkCat == target
}
