package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ankittk/missioncontrol/pkg/models"
)

const agentColumns = `agent_id, name, role, status, emoji, color, current_task_id, session_key, last_heartbeat, description, created_at`

const taskColumns = `task_id, title, description, status, priority, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(r rowScanner) (models.Agent, error) {
	var (
		a             models.Agent
		currentTask   sql.NullString
		lastHeartbeat int64
		createdAt     int64
	)
	if err := r.Scan(&a.ID, &a.Name, &a.Role, &a.Status, &a.Emoji, &a.Color, &currentTask, &a.SessionKey, &lastHeartbeat, &a.Description, &createdAt); err != nil {
		return models.Agent{}, err
	}
	if currentTask.Valid {
		v := currentTask.String
		a.CurrentTaskID = &v
	}
	a.LastHeartbeat = stamp(lastHeartbeat)
	a.CreatedAt = stamp(createdAt)
	return a, nil
}

func scanTask(r rowScanner) (models.Task, error) {
	var (
		t         models.Task
		priority  sql.NullString
		createdAt int64
		updatedAt int64
	)
	if err := r.Scan(&t.ID, &t.Title, &t.Description, &t.Status, &priority, &createdAt, &updatedAt); err != nil {
		return models.Task{}, err
	}
	t.Priority = priority.String
	t.CreatedAt = stamp(createdAt)
	t.UpdatedAt = stamp(updatedAt)
	t.AssigneeIDs = []string{}
	return t, nil
}

func notFound(kind, id string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return err
}

func nullable(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

// --- agents ---

func (s *sqliteStore) CreateAgent(ctx context.Context, in AgentInput) (models.Agent, error) {
	if in.Name == "" || in.Role == "" || in.SessionKey == "" {
		return models.Agent{}, errors.New("agent name, role and session key required")
	}
	status := in.Status
	if status == "" {
		status = models.AgentIdle
	}
	now := time.Now().UTC().UnixNano()
	id := newID()
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO agents(agent_id, name, role, status, emoji, color, current_task_id, session_key, last_heartbeat, description, created_at)
VALUES(?, ?, ?, ?, ?, ?, NULL, ?, ?, ?, ?)`,
		id, in.Name, in.Role, status, in.Emoji, in.Color, in.SessionKey, now, in.Description, now)
	if err != nil {
		return models.Agent{}, err
	}
	return models.Agent{
		ID:            id,
		Name:          in.Name,
		Role:          in.Role,
		Status:        status,
		Emoji:         in.Emoji,
		Color:         in.Color,
		SessionKey:    in.SessionKey,
		LastHeartbeat: stamp(now),
		Description:   in.Description,
		CreatedAt:     stamp(now),
	}, nil
}

func (s *sqliteStore) GetAgent(ctx context.Context, id string) (models.Agent, error) {
	a, err := scanAgent(s.stmtGetAgent.QueryRowContext(ctx, id))
	if err != nil {
		return models.Agent{}, notFound("agent", id, err)
	}
	return a, nil
}

// GetAgentBySessionKey returns the oldest agent registered under sessionKey.
func (s *sqliteStore) GetAgentBySessionKey(ctx context.Context, sessionKey string) (models.Agent, error) {
	a, err := scanAgent(s.stmtAgentBySessionKey.QueryRowContext(ctx, sessionKey))
	if err != nil {
		return models.Agent{}, notFound("agent with session key", sessionKey, err)
	}
	return a, nil
}

func (s *sqliteStore) FirstAgent(ctx context.Context) (models.Agent, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents ORDER BY created_at ASC, rowid ASC LIMIT 1`)
	a, err := scanAgent(row)
	if err != nil {
		return models.Agent{}, notFound("agent", "(any)", err)
	}
	return a, nil
}

func (s *sqliteStore) ListAgents(ctx context.Context, f AgentFilter) ([]models.Agent, error) {
	q := `SELECT ` + agentColumns + ` FROM agents`
	var args []any
	if f.Status != "" {
		q += ` WHERE status = ?`
		args = append(args, f.Status)
	}
	q += ` ORDER BY created_at ASC, rowid ASC`
	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := []models.Agent{}
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// SetAgentStatus sets status and bumps the heartbeat. A nil currentTaskID leaves the current task as is.
func (s *sqliteStore) SetAgentStatus(ctx context.Context, id, status string, currentTaskID *string) (models.Agent, error) {
	now := time.Now().UTC().UnixNano()
	res, err := s.DB.ExecContext(ctx, `
UPDATE agents
SET status = ?, current_task_id = COALESCE(?, current_task_id), last_heartbeat = ?
WHERE agent_id = ?`, status, nullable(currentTaskID), now, id)
	if err != nil {
		return models.Agent{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.Agent{}, fmt.Errorf("agent %s: %w", id, ErrNotFound)
	}
	return s.GetAgent(ctx, id)
}

func (s *sqliteStore) TouchAgentHeartbeat(ctx context.Context, id string) (models.Agent, error) {
	res, err := s.stmtTouchHeartbeat.ExecContext(ctx, time.Now().UTC().UnixNano(), id)
	if err != nil {
		return models.Agent{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.Agent{}, fmt.Errorf("agent %s: %w", id, ErrNotFound)
	}
	return s.GetAgent(ctx, id)
}

// --- tasks ---

func (s *sqliteStore) CreateTask(ctx context.Context, in TaskInput) (models.Task, error) {
	if in.Title == "" {
		return models.Task{}, errors.New("task title required")
	}
	if in.Status == "" {
		return models.Task{}, errors.New("task status required")
	}
	now := time.Now().UTC().UnixNano()
	id := newID()

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return models.Task{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var priority any
	if in.Priority != "" {
		priority = in.Priority
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO tasks(task_id, title, description, status, priority, created_at, updated_at)
VALUES(?, ?, ?, ?, ?, ?, ?)`, id, in.Title, in.Description, in.Status, priority, now, now); err != nil {
		return models.Task{}, err
	}
	assignees, err := insertAssignees(ctx, tx, id, in.AssigneeIDs)
	if err != nil {
		return models.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.Task{}, err
	}
	return models.Task{
		ID:          id,
		Title:       in.Title,
		Description: in.Description,
		Status:      in.Status,
		Priority:    in.Priority,
		AssigneeIDs: assignees,
		CreatedAt:   stamp(now),
		UpdatedAt:   stamp(now),
	}, nil
}

// insertAssignees writes ids in order, skipping blanks and duplicates. Returns what was stored.
func insertAssignees(ctx context.Context, tx *sql.Tx, taskID string, ids []string) ([]string, error) {
	out := []string{}
	seen := make(map[string]bool, len(ids))
	for _, agentID := range ids {
		if agentID == "" || seen[agentID] {
			continue
		}
		seen[agentID] = true
		if _, err := tx.ExecContext(ctx, `INSERT INTO task_assignees(task_id, agent_id, position) VALUES(?, ?, ?)`, taskID, agentID, len(out)); err != nil {
			return nil, err
		}
		out = append(out, agentID)
	}
	return out, nil
}

func (s *sqliteStore) GetTask(ctx context.Context, id string) (models.Task, error) {
	t, err := scanTask(s.stmtGetTask.QueryRowContext(ctx, id))
	if err != nil {
		return models.Task{}, notFound("task", id, err)
	}
	if err := s.fillAssignees(ctx, []*models.Task{&t}); err != nil {
		return models.Task{}, err
	}
	return t, nil
}

func (s *sqliteStore) FindTaskByTitle(ctx context.Context, title string) (models.Task, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE title = ? ORDER BY created_at ASC, rowid ASC LIMIT 1`, title)
	t, err := scanTask(row)
	if err != nil {
		return models.Task{}, notFound("task titled", title, err)
	}
	if err := s.fillAssignees(ctx, []*models.Task{&t}); err != nil {
		return models.Task{}, err
	}
	return t, nil
}

func (s *sqliteStore) ListTasks(ctx context.Context, f TaskFilter) ([]models.Task, error) {
	q := `SELECT ` + taskColumns + ` FROM tasks`
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		where = append(where, `status = ?`)
		args = append(args, f.Status)
	}
	if f.AssigneeID != "" {
		where = append(where, `task_id IN (SELECT task_id FROM task_assignees WHERE agent_id = ?)`)
		args = append(args, f.AssigneeID)
	}
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, ` AND `)
	}
	q += ` ORDER BY created_at DESC, rowid DESC`
	if f.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := []models.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	ptrs := make([]*models.Task, len(out))
	for i := range out {
		ptrs[i] = &out[i]
	}
	if err := s.fillAssignees(ctx, ptrs); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *sqliteStore) fillAssignees(ctx context.Context, tasks []*models.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	byID := make(map[string]*models.Task, len(tasks))
	args := make([]any, 0, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
		args = append(args, t.ID)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(args)), ",")
	rows, err := s.DB.QueryContext(ctx, `SELECT task_id, agent_id FROM task_assignees WHERE task_id IN (`+placeholders+`) ORDER BY task_id, position ASC`, args...)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var taskID, agentID string
		if err := rows.Scan(&taskID, &agentID); err != nil {
			return err
		}
		if t := byID[taskID]; t != nil {
			t.AssigneeIDs = append(t.AssigneeIDs, agentID)
		}
	}
	return rows.Err()
}

func (s *sqliteStore) SetTaskStatus(ctx context.Context, id, status string) (models.Task, error) {
	res, err := s.DB.ExecContext(ctx, `UPDATE tasks SET status = ?, updated_at = ? WHERE task_id = ?`, status, time.Now().UTC().UnixNano(), id)
	if err != nil {
		return models.Task{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.Task{}, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return s.GetTask(ctx, id)
}

// SetTaskAssignees replaces the assignee list wholesale and sets status in one transaction.
func (s *sqliteStore) SetTaskAssignees(ctx context.Context, id string, assigneeIDs []string, status string) (models.Task, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return models.Task{}, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `UPDATE tasks SET status = ?, updated_at = ? WHERE task_id = ?`, status, time.Now().UTC().UnixNano(), id)
	if err != nil {
		return models.Task{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.Task{}, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM task_assignees WHERE task_id = ?`, id); err != nil {
		return models.Task{}, err
	}
	if _, err := insertAssignees(ctx, tx, id, assigneeIDs); err != nil {
		return models.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.Task{}, err
	}
	return s.GetTask(ctx, id)
}

func (s *sqliteStore) TouchTask(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE tasks SET updated_at = ? WHERE task_id = ?`, time.Now().UTC().UnixNano(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return nil
}

// --- messages ---

func (s *sqliteStore) CreateMessage(ctx context.Context, in MessageInput) (models.Message, error) {
	if in.TaskID == "" || in.Content == "" {
		return models.Message{}, errors.New("message task and content required")
	}
	now := time.Now().UTC().UnixNano()
	id := newID()
	_, err := s.DB.ExecContext(ctx, `INSERT INTO messages(message_id, task_id, from_agent_id, content, created_at) VALUES(?, ?, ?, ?, ?)`,
		id, in.TaskID, in.FromAgentID, in.Content, now)
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY") {
			return models.Message{}, fmt.Errorf("task %s: %w", in.TaskID, ErrNotFound)
		}
		return models.Message{}, err
	}
	return models.Message{ID: id, TaskID: in.TaskID, FromAgentID: in.FromAgentID, Content: in.Content, CreatedAt: stamp(now)}, nil
}

func (s *sqliteStore) ListMessages(ctx context.Context, f MessageFilter) ([]models.Message, error) {
	q := `SELECT message_id, task_id, from_agent_id, content, created_at FROM messages`
	var args []any
	switch {
	case f.TaskID != "":
		q += ` WHERE task_id = ?`
		args = append(args, f.TaskID)
		if f.FromAgentID != "" {
			q += ` AND from_agent_id = ?`
			args = append(args, f.FromAgentID)
		}
		q += ` ORDER BY created_at ASC, rowid ASC`
	case f.FromAgentID != "":
		q += ` WHERE from_agent_id = ? ORDER BY created_at DESC, rowid DESC`
		args = append(args, f.FromAgentID)
	default:
		q += ` ORDER BY created_at DESC, rowid DESC`
	}
	if f.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := []models.Message{}
	for rows.Next() {
		var (
			m         models.Message
			createdAt int64
		)
		if err := rows.Scan(&m.ID, &m.TaskID, &m.FromAgentID, &m.Content, &createdAt); err != nil {
			return nil, err
		}
		m.CreatedAt = stamp(createdAt)
		out = append(out, m)
	}
	return out, rows.Err()
}

// --- activities ---

func (s *sqliteStore) AppendActivity(ctx context.Context, in ActivityInput) (models.Activity, error) {
	if in.Type == "" {
		return models.Activity{}, errors.New("activity type required")
	}
	now := time.Now().UTC().UnixNano()
	id := newID()
	if _, err := s.stmtAppendActivity.ExecContext(ctx, id, in.Type, in.AgentID, in.Message, now); err != nil {
		return models.Activity{}, err
	}
	return models.Activity{ID: id, Type: in.Type, AgentID: in.AgentID, Message: in.Message, Timestamp: stamp(now)}, nil
}

func (s *sqliteStore) ListActivities(ctx context.Context, f ActivityFilter) ([]models.Activity, error) {
	q := `SELECT activity_id, type, agent_id, message, timestamp FROM activities`
	var args []any
	if f.AgentID != "" {
		q += ` WHERE agent_id = ?`
		args = append(args, f.AgentID)
	}
	q += ` ORDER BY timestamp DESC, rowid DESC`
	if f.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := []models.Activity{}
	for rows.Next() {
		var (
			a  models.Activity
			ts int64
		)
		if err := rows.Scan(&a.ID, &a.Type, &a.AgentID, &a.Message, &ts); err != nil {
			return nil, err
		}
		a.Timestamp = stamp(ts)
		out = append(out, a)
	}
	return out, rows.Err()
}

// --- documents ---

const documentColumns = `document_id, title, content, type, task_id, created_at, updated_at`

func scanDocument(r rowScanner) (models.Document, error) {
	var (
		d         models.Document
		taskID    sql.NullString
		createdAt int64
		updatedAt int64
	)
	if err := r.Scan(&d.ID, &d.Title, &d.Content, &d.Type, &taskID, &createdAt, &updatedAt); err != nil {
		return models.Document{}, err
	}
	if taskID.Valid {
		v := taskID.String
		d.TaskID = &v
	}
	d.CreatedAt = stamp(createdAt)
	d.UpdatedAt = stamp(updatedAt)
	return d, nil
}

func (s *sqliteStore) CreateDocument(ctx context.Context, in DocumentInput) (models.Document, error) {
	if in.Title == "" || in.Type == "" {
		return models.Document{}, errors.New("document title and type required")
	}
	now := time.Now().UTC().UnixNano()
	id := newID()
	_, err := s.DB.ExecContext(ctx, `INSERT INTO documents(`+documentColumns+`) VALUES(?, ?, ?, ?, ?, ?, ?)`,
		id, in.Title, in.Content, in.Type, nullable(in.TaskID), now, now)
	if err != nil {
		return models.Document{}, err
	}
	return models.Document{ID: id, Title: in.Title, Content: in.Content, Type: in.Type, TaskID: in.TaskID, CreatedAt: stamp(now), UpdatedAt: stamp(now)}, nil
}

func (s *sqliteStore) GetDocument(ctx context.Context, id string) (models.Document, error) {
	d, err := scanDocument(s.DB.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE document_id = ?`, id))
	if err != nil {
		return models.Document{}, notFound("document", id, err)
	}
	return d, nil
}

// UpdateDocument changes title and content when given and non-empty; updated_at always moves.
func (s *sqliteStore) UpdateDocument(ctx context.Context, id string, title, content *string) (models.Document, error) {
	set := []string{`updated_at = ?`}
	args := []any{time.Now().UTC().UnixNano()}
	if title != nil && *title != "" {
		set = append(set, `title = ?`)
		args = append(args, *title)
	}
	if content != nil && *content != "" {
		set = append(set, `content = ?`)
		args = append(args, *content)
	}
	args = append(args, id)
	res, err := s.DB.ExecContext(ctx, `UPDATE documents SET `+strings.Join(set, `, `)+` WHERE document_id = ?`, args...)
	if err != nil {
		return models.Document{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.Document{}, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	return s.GetDocument(ctx, id)
}

func (s *sqliteStore) ListDocuments(ctx context.Context, f DocumentFilter) ([]models.Document, error) {
	q := `SELECT ` + documentColumns + ` FROM documents`
	var (
		where []string
		args  []any
	)
	if f.TaskID != "" {
		where = append(where, `task_id = ?`)
		args = append(args, f.TaskID)
	}
	if f.Type != "" {
		where = append(where, `type = ?`)
		args = append(args, f.Type)
	}
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, ` AND `)
	}
	q += ` ORDER BY created_at ASC, rowid ASC`
	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := []models.Document{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// --- notifications ---

func (s *sqliteStore) CreateNotification(ctx context.Context, in NotificationInput) (models.Notification, error) {
	if in.MentionedAgentID == "" {
		return models.Notification{}, errors.New("mentioned agent required")
	}
	now := time.Now().UTC().UnixNano()
	id := newID()
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO notifications(notification_id, mentioned_agent_id, task_id, content, delivered, created_at, delivered_at)
VALUES(?, ?, ?, ?, 0, ?, NULL)`, id, in.MentionedAgentID, nullable(in.TaskID), in.Content, now)
	if err != nil {
		return models.Notification{}, err
	}
	return models.Notification{ID: id, MentionedAgentID: in.MentionedAgentID, TaskID: in.TaskID, Content: in.Content, CreatedAt: stamp(now)}, nil
}

func (s *sqliteStore) ListNotifications(ctx context.Context, f NotificationFilter) ([]models.Notification, error) {
	q := `SELECT notification_id, mentioned_agent_id, task_id, content, delivered, created_at, delivered_at FROM notifications`
	var (
		where []string
		args  []any
	)
	if f.AgentID != "" {
		where = append(where, `mentioned_agent_id = ?`)
		args = append(args, f.AgentID)
	}
	if f.UndeliveredOnly {
		where = append(where, `delivered = 0`)
	}
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, ` AND `)
	}
	q += ` ORDER BY created_at ASC, rowid ASC`
	if f.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := []models.Notification{}
	for rows.Next() {
		var (
			n           models.Notification
			taskID      sql.NullString
			delivered   int
			createdAt   int64
			deliveredAt sql.NullInt64
		)
		if err := rows.Scan(&n.ID, &n.MentionedAgentID, &taskID, &n.Content, &delivered, &createdAt, &deliveredAt); err != nil {
			return nil, err
		}
		if taskID.Valid {
			v := taskID.String
			n.TaskID = &v
		}
		n.Delivered = delivered != 0
		n.CreatedAt = stamp(createdAt)
		if deliveredAt.Valid {
			t := stamp(deliveredAt.Int64)
			n.DeliveredAt = &t
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *sqliteStore) MarkNotificationDelivered(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE notifications SET delivered = 1, delivered_at = ? WHERE notification_id = ? AND delivered = 0`,
		time.Now().UTC().UnixNano(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists int
		err := s.DB.QueryRowContext(ctx, `SELECT 1 FROM notifications WHERE notification_id = ?`, id).Scan(&exists)
		if err != nil {
			return notFound("notification", id, err)
		}
	}
	return nil
}
