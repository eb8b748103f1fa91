// Package analysis summarizes recorded agent interactions into a small
// insight document (success rate, dominant topics).
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
)

type Insights struct{}

type Interaction struct {
	Topic   string `json:"topic"`
	Success bool   `json:"success"`
}

type Request struct {
	Interactions []Interaction `json:"interactions"`
	TopN         int           `json:"top_n"`
}

type Summary struct {
	Total       int      `json:"total"`
	Succeeded   int      `json:"succeeded"`
	SuccessRate float64  `json:"success_rate"`
	TopTopics   []string `json:"top_topics"`
}

func (Insights) Handle(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	var req Request
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("invalid analysis payload: %w", err)
	}
	if len(req.Interactions) == 0 {
		return nil, fmt.Errorf("no interactions to analyze")
	}
	if req.TopN <= 0 {
		req.TopN = 3
	}

	counts := make(map[string]int)
	sum := Summary{Total: len(req.Interactions)}
	for _, it := range req.Interactions {
		if it.Success {
			sum.Succeeded++
		}
		if it.Topic != "" {
			counts[it.Topic]++
		}
	}
	sum.SuccessRate = float64(sum.Succeeded) / float64(sum.Total)

	topics := make([]string, 0, len(counts))
	for topic := range counts {
		topics = append(topics, topic)
	}
	sort.Slice(topics, func(i, j int) bool {
		if counts[topics[i]] != counts[topics[j]] {
			return counts[topics[i]] > counts[topics[j]]
		}
		return topics[i] < topics[j]
	})
	if len(topics) > req.TopN {
		topics = topics[:req.TopN]
	}
	sum.TopTopics = topics

	return json.Marshal(sum)
}
