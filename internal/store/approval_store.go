package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/davidrudduck/vk-swarm-sub003/internal/domain/approval"
	vkerrors "github.com/davidrudduck/vk-swarm-sub003/internal/errors"
)

// ApprovalStore is the sqlite-backed implementation of approval.Store.
type ApprovalStore struct {
	pool     *Pool
	retryCfg RetryConfig
}

func NewApprovalStore(pool *Pool, retryCfg RetryConfig) *ApprovalStore {
	return &ApprovalStore{pool: pool, retryCfg: retryCfg}
}

type approvalRow struct {
	ID                 string         `db:"id"`
	ExecutionProcessID string         `db:"execution_process_id"`
	Kind               approval.Kind  `db:"kind"`
	ToolCallID         string         `db:"tool_call_id"`
	Tool               string         `db:"tool"`
	Input              string         `db:"input"`
	QuestionsRaw       sql.NullString `db:"questions"`
	Status             approval.Status `db:"status"`
	DenialReason       *string        `db:"denial_reason"`
	AnswersRaw         sql.NullString `db:"answers"`
	CreatedAt          time.Time      `db:"created_at"`
	ResolvedAt         *time.Time     `db:"resolved_at"`
}

func (r *approvalRow) toDomain() (*approval.Approval, error) {
	a := &approval.Approval{
		ID: r.ID, ExecutionProcessID: r.ExecutionProcessID, Kind: r.Kind,
		ToolCallID: r.ToolCallID, Tool: r.Tool, Input: r.Input,
		Status: r.Status, DenialReason: r.DenialReason,
		CreatedAt: r.CreatedAt, ResolvedAt: r.ResolvedAt,
	}
	if r.QuestionsRaw.Valid && r.QuestionsRaw.String != "" {
		if err := json.Unmarshal([]byte(r.QuestionsRaw.String), &a.Questions); err != nil {
			return nil, err
		}
	}
	if r.AnswersRaw.Valid && r.AnswersRaw.String != "" {
		if err := json.Unmarshal([]byte(r.AnswersRaw.String), &a.Answers); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (s *ApprovalStore) Create(ctx context.Context, a *approval.Approval) error {
	a.CreatedAt = time.Now().UTC()
	questionsRaw, err := json.Marshal(a.Questions)
	if err != nil {
		return err
	}
	var answersRaw []byte
	if a.Answers != nil {
		if answersRaw, err = json.Marshal(a.Answers); err != nil {
			return err
		}
	}
	return Retry(ctx, s.retryCfg, nil, func(ctx context.Context) error {
		_, err := s.pool.DB.ExecContext(ctx, `
			INSERT INTO approvals (
				id, execution_process_id, kind, tool_call_id, tool, input,
				questions, status, denial_reason, answers, created_at, resolved_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.ExecutionProcessID, a.Kind, a.ToolCallID, a.Tool, a.Input,
			string(questionsRaw), a.Status, a.DenialReason, nullableJSON(answersRaw), a.CreatedAt, a.ResolvedAt)
		return err
	})
}

func nullableJSON(raw []byte) interface{} {
	if raw == nil {
		return nil
	}
	return string(raw)
}

func (s *ApprovalStore) Get(ctx context.Context, id string) (*approval.Approval, error) {
	var row approvalRow
	err := s.pool.DB.GetContext(ctx, &row, `SELECT * FROM approvals WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, vkerrors.NotFoundError("approval " + id)
	}
	if err != nil {
		return nil, err
	}
	return row.toDomain()
}

func (s *ApprovalStore) Resolve(ctx context.Context, id string, status approval.Status, denialReason *string, answers map[string]string) error {
	var answersRaw []byte
	if answers != nil {
		raw, err := json.Marshal(answers)
		if err != nil {
			return err
		}
		answersRaw = raw
	}
	return Retry(ctx, s.retryCfg, nil, func(ctx context.Context) error {
		res, err := s.pool.DB.ExecContext(ctx, `
			UPDATE approvals SET status = ?, denial_reason = ?, answers = ?, resolved_at = ?
			WHERE id = ?`, status, denialReason, nullableJSON(answersRaw), time.Now().UTC(), id)
		if err != nil {
			return err
		}
		return rowsAffectedOrNotFound(res, "approval "+id)
	})
}

func (s *ApprovalStore) ListPendingForExecution(ctx context.Context, executionID string) ([]*approval.Approval, error) {
	var rows []approvalRow
	err := s.pool.DB.SelectContext(ctx, &rows,
		`SELECT * FROM approvals WHERE execution_process_id = ? AND status = ? ORDER BY created_at ASC`,
		executionID, approval.StatusPending)
	if err != nil {
		return nil, err
	}
	out := make([]*approval.Approval, 0, len(rows))
	for i := range rows {
		a, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

var _ approval.Store = (*ApprovalStore)(nil)
