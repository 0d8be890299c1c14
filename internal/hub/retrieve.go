package hub

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/khanglvm/tool-finder-mcp/internal/recommend"
	"github.com/khanglvm/tool-finder-mcp/internal/session"
	"github.com/khanglvm/tool-finder-mcp/internal/storage"
)

// FirstTimeInstructions orients a caller on its first retrieve.
const FirstTimeInstructions = `You are connected to a tool finder. Describe the capabilities you need in plain language with retrieve_tools; each description returns the most relevant tools.

Keep the session_id from this response and pass it on every later retrieve_tools call. Tools already sent in this session are listed under known_tools with their name and fingerprint only, so keep the full definitions you receive under new_tools.

To use a tool, call execute_tool with its fingerprint and the parameters its input_schema describes.`

// RetrieveRequest is the input of Retrieve.
type RetrieveRequest struct {
	Descriptions []string `json:"descriptions"`
	SessionID    string   `json:"session_id,omitempty"`
	ServerNames  []string `json:"server_names,omitempty"`
	GroupNames   []string `json:"group_names,omitempty"`
}

// NewTool is a tool the session has not been shown before, with full detail.
type NewTool struct {
	Rank         int     `json:"rank"`
	Name         string  `json:"name"`
	Server       string  `json:"server"`
	Fingerprint  string  `json:"fingerprint"`
	Description  string  `json:"description"`
	Similarity   float64 `json:"similarity"`
	InputSchema  any     `json:"input_schema,omitempty"`
	OutputSchema any     `json:"output_schema,omitempty"`
}

// KnownTool is a tool the session already holds.
type KnownTool struct {
	Rank        int    `json:"rank"`
	Name        string `json:"name"`
	Fingerprint string `json:"fingerprint"`
}

// DescriptionResult holds the tools found for one description.
type DescriptionResult struct {
	Description string      `json:"description"`
	NewTools    []NewTool   `json:"new_tools"`
	KnownTools  []KnownTool `json:"known_tools"`
	NewCount    int         `json:"new_count"`
	KnownCount  int         `json:"known_count"`
}

// RetrieveResponse is the output of Retrieve.
type RetrieveResponse struct {
	SessionID    string              `json:"session_id"`
	FirstTime    bool                `json:"first_time"`
	Instructions string              `json:"instructions,omitempty"`
	Results      []DescriptionResult `json:"results"`
	TotalNew     int                 `json:"total_new"`
	TotalKnown   int                 `json:"total_known"`
}

// Validate checks a request before any state is touched.
func (r RetrieveRequest) Validate() error {
	if len(r.Descriptions) == 0 {
		return fmt.Errorf("%w: descriptions must not be empty", ErrValidation)
	}
	for i, d := range r.Descriptions {
		if strings.TrimSpace(d) == "" {
			return fmt.Errorf("%w: descriptions[%d] is empty", ErrValidation, i)
		}
	}
	return nil
}

// Retrieve recommends tools for every description and splits them into tools
// new to the session and tools it has already been sent. New tools are
// recorded in the ledger with one write for the whole call.
func (h *Hub) Retrieve(ctx context.Context, req RetrieveRequest) (*RetrieveResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	adm, err := h.admitter.Admit(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if adm.FirstTime && req.SessionID != "" {
		h.logger.Debug("replacing unknown session", zap.String("supplied", req.SessionID), zap.String("session_id", adm.ID))
	}

	resp := &RetrieveResponse{
		SessionID: adm.ID,
		FirstTime: adm.FirstTime,
		Results:   make([]DescriptionResult, 0, len(req.Descriptions)),
	}
	if adm.FirstTime {
		resp.Instructions = FirstTimeInstructions
	}

	opts := recommend.Options{ServerNames: req.ServerNames, GroupNames: req.GroupNames}
	surfaced := make(map[string]struct{})
	var retrievals []storage.Retrieval

	for _, desc := range req.Descriptions {
		results, err := h.recommender.Recommend(ctx, desc, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to recommend tools: %w", err)
		}

		dr := DescriptionResult{
			Description: desc,
			NewTools:    []NewTool{},
			KnownTools:  []KnownTool{},
		}
		for _, r := range results {
			known, err := h.known(ctx, adm, surfaced, r.Fingerprint)
			if err != nil {
				return nil, err
			}
			if known {
				dr.KnownTools = append(dr.KnownTools, KnownTool{Rank: r.Rank, Name: r.Name, Fingerprint: r.Fingerprint})
				continue
			}

			surfaced[r.Fingerprint] = struct{}{}
			retrievals = append(retrievals, storage.Retrieval{Fingerprint: r.Fingerprint, ToolName: r.Name})
			dr.NewTools = append(dr.NewTools, NewTool{
				Rank:         r.Rank,
				Name:         r.Name,
				Server:       r.Server,
				Fingerprint:  r.Fingerprint,
				Description:  r.Description,
				Similarity:   r.Similarity,
				InputSchema:  r.InputSchema,
				OutputSchema: r.OutputSchema,
			})
		}
		dr.NewCount = len(dr.NewTools)
		dr.KnownCount = len(dr.KnownTools)
		resp.TotalNew += dr.NewCount
		resp.TotalKnown += dr.KnownCount
		resp.Results = append(resp.Results, dr)

		h.record(adm.ID, desc, len(results), dr.NewCount)
	}

	if len(retrievals) > 0 {
		if _, err := h.store.RecordRetrievals(ctx, adm.ID, retrievals); err != nil {
			return nil, fmt.Errorf("failed to record retrievals: %w", err)
		}
	}

	h.logger.Info("retrieved tools",
		zap.String("session_id", resp.SessionID),
		zap.Bool("first_time", resp.FirstTime),
		zap.Int("descriptions", len(req.Descriptions)),
		zap.Int("new", resp.TotalNew),
		zap.Int("known", resp.TotalKnown),
	)
	return resp, nil
}

// known reports whether the session already holds fp, either from an earlier
// call or from an earlier description of this one.
func (h *Hub) known(ctx context.Context, adm session.Admission, surfaced map[string]struct{}, fp string) (bool, error) {
	if _, ok := surfaced[fp]; ok {
		return true, nil
	}
	// A fresh session has no ledger entries.
	if adm.FirstTime {
		return false, nil
	}
	seen, err := h.store.HasSeen(ctx, adm.ID, fp)
	if err != nil {
		return false, fmt.Errorf("failed to read session ledger: %w", err)
	}
	return seen, nil
}

func (h *Hub) record(sessionID, query string, results, newCount int) {
	h.mu.Lock()
	rec := h.recorder
	h.mu.Unlock()
	if rec != nil {
		rec.Record(sessionID, query, results, newCount)
	}
}
