// Package similarity implements a TF-weighted text scorer for
// mixed-language (CJK + Latin) titles.
//
// This is an explicit heuristic baseline: no segmentation, no IDF, no
// trained embeddings. CJK runs are expanded into overlapping n-grams,
// and a curated keyword list plus a substring-match boost keep
// short-title similarity meaningful. The boost is a deliberate
// deviation from pure cosine similarity; ranking behavior depends on
// it, so it must not be simplified away.
package similarity

import (
	"math"
	"strings"
	"unicode"
)

// N-gram and boost weights.
const (
	bigramWeight  = 0.5
	trigramWeight = 0.8
	keywordWeight = 1.5
	matchBoost    = 0.1
)

// stopWords are discarded during tokenization, in any language.
var stopWords = map[string]struct{}{
	"的": {}, "了": {}, "和": {}, "与": {}, "这": {}, "那": {}, "是": {}, "在": {},
	"有": {}, "为": {}, "啊": {}, "吗": {}, "么": {}, "嗯": {}, "呢": {}, "吧": {},
	"the": {}, "a": {}, "an": {}, "of": {}, "to": {}, "and": {}, "in": {}, "for": {},
	"on": {}, "with": {}, "by": {}, "at": {}, "is": {}, "are": {}, "was": {}, "were": {},
}

// keywordPhrases receive a fixed weight bump whenever they occur
// literally in the text, compensating for the absence of a real
// segmenter.
var keywordPhrases = []string{
	"科技", "人工智能", "机器学习", "深度学习", "算法", "编程", "互联网", "数据",
	"旅游", "美食", "风景", "攻略", "旅行",
	"technology", "artificial intelligence", "machine learning",
	"programming", "software", "travel", "tourism", "cuisine",
}

// Scorer tokenizes text and scores similarity between term-weight
// vectors. The zero value is not usable; use NewScorer.
type Scorer struct {
	stopWords map[string]struct{}
	keywords  []string
}

// NewScorer returns a Scorer with the default stop-word set and
// keyword list.
func NewScorer() *Scorer {
	return &Scorer{stopWords: stopWords, keywords: keywordPhrases}
}

// TermWeights tokenizes text into a normalized term-frequency vector.
// Latin tokens split on whitespace; CJK runs additionally contribute
// overlapping 2-grams and 3-grams; keyword phrases found in the text
// contribute a fixed extra weight. Raw counts are divided by their
// sum (plain TF, no IDF).
func (s *Scorer) TermWeights(text string) map[string]float64 {
	if text == "" {
		return map[string]float64{}
	}

	lower := strings.ToLower(text)
	cleaned := stripPunctuation(lower)

	counts := make(map[string]float64)
	for _, token := range strings.Fields(cleaned) {
		if s.skip(token) {
			continue
		}
		counts[token]++
	}

	for _, run := range cjkRuns(cleaned) {
		s.addGrams(counts, run, 2, bigramWeight)
		s.addGrams(counts, run, 3, trigramWeight)
	}

	for _, phrase := range s.keywords {
		if strings.Contains(lower, phrase) {
			counts[phrase] += keywordWeight
		}
	}

	total := 0.0
	for _, c := range counts {
		total += c
	}
	if total > 0 {
		for term, c := range counts {
			counts[term] = c / total
		}
	}
	return counts
}

// Similarity scores a candidate text against a profile vector:
// cosine similarity over shared terms plus a substring-match boost of
// matchBoost x profile weight for every profile term (length >= 2)
// literally contained in the text. When there is no term overlap the
// boost alone is returned.
func (s *Scorer) Similarity(profile map[string]float64, text string) float64 {
	if text == "" || len(profile) == 0 {
		return 0
	}

	textTerms := s.TermWeights(text)
	lower := strings.ToLower(text)

	dot := 0.0
	boost := 0.0
	for term, weight := range profile {
		if w, ok := textTerms[term]; ok {
			dot += weight * w
		}
		if len([]rune(term)) >= 2 && strings.Contains(lower, term) {
			boost += matchBoost * weight
		}
	}

	if dot == 0 {
		return boost
	}

	cos := dot / (norm(profile) * norm(textTerms))
	return cos + boost
}

// BuildProfile merges the term weights of several texts by summation.
func (s *Scorer) BuildProfile(texts []string) map[string]float64 {
	profile := make(map[string]float64)
	for _, text := range texts {
		for term, weight := range s.TermWeights(text) {
			profile[term] += weight
		}
	}
	return profile
}

func (s *Scorer) skip(token string) bool {
	if len([]rune(token)) < 2 {
		return true
	}
	_, stopped := s.stopWords[token]
	return stopped
}

func (s *Scorer) addGrams(counts map[string]float64, run []rune, n int, weight float64) {
	for i := 0; i+n <= len(run); i++ {
		gram := string(run[i : i+n])
		if _, stopped := s.stopWords[gram]; stopped {
			continue
		}
		counts[gram] += weight
	}
}

func norm(v map[string]float64) float64 {
	sum := 0.0
	for _, w := range v {
		sum += w * w
	}
	return math.Sqrt(sum)
}

// stripPunctuation replaces punctuation and symbol runes with spaces.
func stripPunctuation(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			return ' '
		}
		return r
	}, s)
}

// cjkRuns extracts maximal runs of consecutive CJK code points.
func cjkRuns(s string) [][]rune {
	var runs [][]rune
	var current []rune
	for _, r := range s {
		if isCJK(r) {
			current = append(current, r)
			continue
		}
		if len(current) >= 2 {
			runs = append(runs, current)
		}
		current = nil
	}
	if len(current) >= 2 {
		runs = append(runs, current)
	}
	return runs
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) ||
		unicode.Is(unicode.Hangul, r)
}
