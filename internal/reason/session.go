// Package reason drives one decision-tree reasoning episode: generate
// hypotheses for an objective, evaluate each in parallel, prune the
// weak branches, and pick the best-supported decision.
package reason

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/skalene/canopy/internal/tree"
)

const hypothesisSystemPrompt = `You generate competing hypotheses for an objective.
Reply with one hypothesis per line, no numbering, no commentary.`

const evaluateSystemPrompt = `You evaluate one hypothesis against an objective.
Reply with a single JSON object: {"confidence": <0.0-1.0>, "analysis": "<short reasoning>"}.`

const decideSystemPrompt = `You turn an evaluated hypothesis into a concrete recommendation.
Reply with a single JSON object: {"confidence": <0.0-1.0>, "decision": "<the recommendation>"}.`

// Completer is the inference surface the session needs; tests stub it.
type Completer interface {
	Complete(ctx context.Context, system, prompt string, temperature float64) (string, error)
}

// SnapshotSink persists the finished tree. Optional.
type SnapshotSink interface {
	SaveTreeSnapshot(sessionID string, records []map[string]any) error
}

// Config holds the tunables for one session.
type Config struct {
	// Tree carries the depth/breadth/pruning limits.
	Tree tree.Config
	// MaxHypotheses caps how many hypotheses are requested. Values above
	// the tree's breadth limit are cut off by admission anyway.
	MaxHypotheses int
	// Temperature is passed through to the completer.
	Temperature float64
	// Logf receives debug lines. Optional.
	Logf func(format string, args ...interface{})
}

// Recommendation is the outcome of a session.
type Recommendation struct {
	SessionID string
	// Path holds the winning root-to-decision chain.
	Path []tree.Node
	// Score is the recency-weighted confidence of the path.
	Score float64
	// Decision is the recommendation text of the final node.
	Decision string
	// Pruned is how many nodes were discarded for low confidence.
	Pruned int
}

// Session explores one objective over a decision tree.
type Session struct {
	id     string
	tree   *tree.Tree
	client Completer
	sink   SnapshotSink
	cfg    Config
	logf   func(format string, args ...interface{})
}

// New creates a session. sink may be nil.
func New(client Completer, sink SnapshotSink, cfg Config) *Session {
	if cfg.MaxHypotheses <= 0 {
		cfg.MaxHypotheses = tree.DefaultMaxBreadth
	}
	logf := cfg.Logf
	if logf == nil {
		logf = func(string, ...interface{}) {}
	}
	return &Session{
		id:     uuid.NewString(),
		tree:   tree.New(cfg.Tree),
		client: client,
		sink:   sink,
		cfg:    cfg,
		logf:   logf,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Tree exposes the underlying tree for summaries.
func (s *Session) Tree() *tree.Tree {
	return s.tree
}

// Run executes the full episode and returns the winning recommendation.
func (s *Session) Run(ctx context.Context, objective string) (*Recommendation, error) {
	rootID, err := s.tree.CreateRoot(objective, nil)
	if err != nil {
		return nil, err
	}

	hypotheses, err := s.generateHypotheses(ctx, objective)
	if err != nil {
		return nil, err
	}
	if len(hypotheses) == 0 {
		return nil, fmt.Errorf("no hypotheses generated for objective")
	}

	hypIDs, err := s.tree.ExpandHypotheses(rootID, hypotheses)
	if err != nil {
		return nil, err
	}
	s.logf("[reason] %d of %d hypotheses admitted", len(hypIDs), len(hypotheses))

	// One research step per hypothesis, evaluated in parallel.
	var researchIDs []string
	for _, hypID := range hypIDs {
		hyp, _ := s.tree.Node(hypID)
		ids, err := s.tree.ExpandResearchPaths(hypID, []tree.ResearchSpec{{
			Content: "evaluate: " + hyp.Content,
			Payload: map[string]any{"objective": objective, "hypothesis": hyp.Content},
			Executor: tree.ExecutorFunc(func(ctx context.Context, payload map[string]any) (map[string]any, error) {
				return s.evaluate(ctx, payload)
			}),
		}})
		if err != nil {
			return nil, err
		}
		researchIDs = append(researchIDs, ids...)
	}

	outcomes := s.tree.ExecuteParallelBranches(ctx, researchIDs)
	for _, o := range outcomes {
		if o.Err != nil {
			s.logf("[reason] evaluation failed for %s: %v", o.NodeID, o.Err)
		}
	}

	pruned := s.tree.PruneLowConfidencePaths()
	s.logf("[reason] pruned %d nodes", pruned)

	// Decide on each surviving evaluation.
	for _, researchID := range researchIDs {
		node, ok := s.tree.Node(researchID)
		if !ok || node.Status != tree.StatusCompleted {
			continue
		}
		decisionID, err := s.tree.AddNode(researchID, tree.KindDecision, "decide: "+node.Content,
			map[string]any{
				"objective":  objective,
				"hypothesis": node.Payload["hypothesis"],
				"analysis":   node.Result["analysis"],
			},
			tree.ExecutorFunc(func(ctx context.Context, payload map[string]any) (map[string]any, error) {
				return s.decide(ctx, payload)
			}))
		if err != nil {
			// Depth or breadth admission: narrower exploration, not a fault.
			s.logf("[reason] decision not admitted under %s: %v", researchID, err)
			continue
		}
		if _, err := s.tree.ExecuteNode(ctx, decisionID); err != nil {
			s.logf("[reason] decision failed for %s: %v", decisionID, err)
		}
	}

	pathIDs, score, ok := s.tree.FindBestPath()
	if s.sink != nil {
		if err := s.sink.SaveTreeSnapshot(s.id, s.tree.Snapshot()); err != nil {
			s.logf("[reason] snapshot persist failed: %v", err)
		}
	}
	if !ok {
		return nil, fmt.Errorf("no decision reached: every path failed or was pruned")
	}

	rec := &Recommendation{SessionID: s.id, Score: score, Pruned: pruned}
	for _, id := range pathIDs {
		node, _ := s.tree.Node(id)
		rec.Path = append(rec.Path, node)
	}
	last := rec.Path[len(rec.Path)-1]
	if d, ok := last.Result["decision"].(string); ok {
		rec.Decision = d
	}
	return rec, nil
}

// generateHypotheses asks the model for competing hypotheses.
func (s *Session) generateHypotheses(ctx context.Context, objective string) ([]string, error) {
	prompt := fmt.Sprintf("Objective: %s\n\nGenerate up to %d distinct hypotheses.", objective, s.cfg.MaxHypotheses)
	text, err := s.client.Complete(ctx, hypothesisSystemPrompt, prompt, s.cfg.Temperature)
	if err != nil {
		return nil, fmt.Errorf("generate hypotheses: %w", err)
	}
	return parseLines(text, s.cfg.MaxHypotheses), nil
}

// evaluate scores one hypothesis. The model's confidence flows back
// into the node through the result map.
func (s *Session) evaluate(ctx context.Context, payload map[string]any) (map[string]any, error) {
	prompt := fmt.Sprintf("Objective: %v\nHypothesis: %v", payload["objective"], payload["hypothesis"])
	text, err := s.client.Complete(ctx, evaluateSystemPrompt, prompt, s.cfg.Temperature)
	if err != nil {
		return nil, err
	}
	return parseJudgment(text, "analysis")
}

// decide turns an evaluated hypothesis into a recommendation.
func (s *Session) decide(ctx context.Context, payload map[string]any) (map[string]any, error) {
	prompt := fmt.Sprintf("Objective: %v\nHypothesis: %v\nAnalysis: %v",
		payload["objective"], payload["hypothesis"], payload["analysis"])
	text, err := s.client.Complete(ctx, decideSystemPrompt, prompt, s.cfg.Temperature)
	if err != nil {
		return nil, err
	}
	return parseJudgment(text, "decision")
}

// parseLines splits completion text into up to limit non-empty lines,
// trimming list markers the model tends to add anyway.
func parseLines(text string, limit int) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*0123456789. )")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, line)
		if len(out) == limit {
			break
		}
	}
	return out
}

// parseJudgment decodes a {"confidence": x, "<textKey>": "..."} reply,
// tolerating code fences around the JSON object.
func parseJudgment(text, textKey string) (map[string]any, error) {
	trimmed := strings.TrimSpace(text)
	if i := strings.Index(trimmed, "{"); i >= 0 {
		if j := strings.LastIndex(trimmed, "}"); j > i {
			trimmed = trimmed[i : j+1]
		}
	}

	raw := make(map[string]any)
	if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
		return nil, fmt.Errorf("parse judgment: %w", err)
	}

	result := map[string]any{}
	if c, ok := raw["confidence"].(float64); ok {
		result["confidence"] = c
	}
	if v, ok := raw[textKey].(string); ok {
		result[textKey] = v
	}
	if _, ok := result["confidence"]; !ok {
		return nil, fmt.Errorf("parse judgment: missing confidence")
	}
	return result, nil
}
