package arbitration

import "strings"

// 中文说明：
// 连贯性评分是一个刻意廉价的代理指标：统计固定的论证连接词出现次数，
// 不做任何语义分析。三次命中即饱和到 1.0。不要在这里加 NLP。

var discourseConnectives = []string{
	"therefore",
	"because",
	"however",
	"thus",
	"consequently",
	"for example",
	"specifically",
	"in particular",
}

const coherenceSaturation = 3.0

// ScoreCoherence 统计论证连接词（大小写不敏感），score = min(1, count/3)。
func ScoreCoherence(text string) float64 {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	lower := strings.ToLower(text)
	count := 0
	for _, w := range discourseConnectives {
		count += strings.Count(lower, w)
	}
	score := float64(count) / coherenceSaturation
	if score > 1 {
		return 1
	}
	return score
}
