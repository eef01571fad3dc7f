package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ankittk/missioncontrol/internal/store"
	"github.com/ankittk/missioncontrol/pkg/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const agentColumns = `agent_id, name, role, status, emoji, color, current_task_id, session_key, last_heartbeat, description, created_at`

const taskColumns = `task_id, title, description, status, priority, created_at, updated_at`

const documentColumns = `document_id, title, content, type, task_id, created_at, updated_at`

func stamp(ns int64) time.Time { return time.Unix(0, ns).UTC() }

func now() int64 { return time.Now().UTC().UnixNano() }

func notFound(kind, id string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", kind, id, store.ErrNotFound)
	}
	return err
}

// args builds positional parameters ($1, $2, ...) as values are added.
type args []any

func (a *args) add(v any) string {
	*a = append(*a, v)
	return fmt.Sprintf("$%d", len(*a))
}

func scanAgent(r pgx.Row) (models.Agent, error) {
	var (
		a             models.Agent
		lastHeartbeat int64
		createdAt     int64
	)
	if err := r.Scan(&a.ID, &a.Name, &a.Role, &a.Status, &a.Emoji, &a.Color, &a.CurrentTaskID, &a.SessionKey, &lastHeartbeat, &a.Description, &createdAt); err != nil {
		return models.Agent{}, err
	}
	a.LastHeartbeat = stamp(lastHeartbeat)
	a.CreatedAt = stamp(createdAt)
	return a, nil
}

func scanTask(r pgx.Row) (models.Task, error) {
	var (
		t         models.Task
		priority  *string
		createdAt int64
		updatedAt int64
	)
	if err := r.Scan(&t.ID, &t.Title, &t.Description, &t.Status, &priority, &createdAt, &updatedAt); err != nil {
		return models.Task{}, err
	}
	if priority != nil {
		t.Priority = *priority
	}
	t.CreatedAt = stamp(createdAt)
	t.UpdatedAt = stamp(updatedAt)
	t.AssigneeIDs = []string{}
	return t, nil
}

func scanDocument(r pgx.Row) (models.Document, error) {
	var (
		d         models.Document
		createdAt int64
		updatedAt int64
	)
	if err := r.Scan(&d.ID, &d.Title, &d.Content, &d.Type, &d.TaskID, &createdAt, &updatedAt); err != nil {
		return models.Document{}, err
	}
	d.CreatedAt = stamp(createdAt)
	d.UpdatedAt = stamp(updatedAt)
	return d, nil
}

// --- agents ---

func (s *Store) CreateAgent(ctx context.Context, in store.AgentInput) (models.Agent, error) {
	if in.Name == "" || in.Role == "" || in.SessionKey == "" {
		return models.Agent{}, errors.New("agent name, role and session key required")
	}
	status := in.Status
	if status == "" {
		status = models.AgentIdle
	}
	ts := now()
	id := uuid.NewString()
	_, err := s.Pool.Exec(ctx, `
INSERT INTO agents(agent_id, name, role, status, emoji, color, current_task_id, session_key, last_heartbeat, description, created_at)
VALUES($1, $2, $3, $4, $5, $6, NULL, $7, $8, $9, $8)`,
		id, in.Name, in.Role, status, in.Emoji, in.Color, in.SessionKey, ts, in.Description)
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
		LastHeartbeat: stamp(ts),
		Description:   in.Description,
		CreatedAt:     stamp(ts),
	}, nil
}

func (s *Store) GetAgent(ctx context.Context, id string) (models.Agent, error) {
	a, err := scanAgent(s.Pool.QueryRow(ctx, `SELECT `+agentColumns+` FROM agents WHERE agent_id = $1`, id))
	if err != nil {
		return models.Agent{}, notFound("agent", id, err)
	}
	return a, nil
}

func (s *Store) GetAgentBySessionKey(ctx context.Context, sessionKey string) (models.Agent, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+agentColumns+` FROM agents WHERE session_key = $1 ORDER BY created_at ASC, seq ASC LIMIT 1`, sessionKey)
	a, err := scanAgent(row)
	if err != nil {
		return models.Agent{}, notFound("agent with session key", sessionKey, err)
	}
	return a, nil
}

func (s *Store) FirstAgent(ctx context.Context) (models.Agent, error) {
	a, err := scanAgent(s.Pool.QueryRow(ctx, `SELECT `+agentColumns+` FROM agents ORDER BY created_at ASC, seq ASC LIMIT 1`))
	if err != nil {
		return models.Agent{}, notFound("agent", "(any)", err)
	}
	return a, nil
}

func (s *Store) ListAgents(ctx context.Context, f store.AgentFilter) ([]models.Agent, error) {
	var a args
	q := `SELECT ` + agentColumns + ` FROM agents`
	if f.Status != "" {
		q += ` WHERE status = ` + a.add(f.Status)
	}
	q += ` ORDER BY created_at ASC, seq ASC`
	rows, err := s.Pool.Query(ctx, q, a...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Agent{}
	for rows.Next() {
		ag, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ag)
	}
	return out, rows.Err()
}

func (s *Store) SetAgentStatus(ctx context.Context, id, status string, currentTaskID *string) (models.Agent, error) {
	tag, err := s.Pool.Exec(ctx, `
UPDATE agents
SET status = $1, current_task_id = COALESCE($2, current_task_id), last_heartbeat = $3
WHERE agent_id = $4`, status, currentTaskID, now(), id)
	if err != nil {
		return models.Agent{}, err
	}
	if tag.RowsAffected() == 0 {
		return models.Agent{}, fmt.Errorf("agent %s: %w", id, store.ErrNotFound)
	}
	return s.GetAgent(ctx, id)
}

func (s *Store) TouchAgentHeartbeat(ctx context.Context, id string) (models.Agent, error) {
	tag, err := s.Pool.Exec(ctx, `UPDATE agents SET last_heartbeat = $1 WHERE agent_id = $2`, now(), id)
	if err != nil {
		return models.Agent{}, err
	}
	if tag.RowsAffected() == 0 {
		return models.Agent{}, fmt.Errorf("agent %s: %w", id, store.ErrNotFound)
	}
	return s.GetAgent(ctx, id)
}

// --- tasks ---

func (s *Store) CreateTask(ctx context.Context, in store.TaskInput) (models.Task, error) {
	if in.Title == "" {
		return models.Task{}, errors.New("task title required")
	}
	if in.Status == "" {
		return models.Task{}, errors.New("task status required")
	}
	ts := now()
	id := uuid.NewString()
	var priority *string
	if in.Priority != "" {
		priority = &in.Priority
	}

	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return models.Task{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
INSERT INTO tasks(task_id, title, description, status, priority, created_at, updated_at)
VALUES($1, $2, $3, $4, $5, $6, $6)`, id, in.Title, in.Description, in.Status, priority, ts); err != nil {
		return models.Task{}, err
	}
	assignees, err := insertAssignees(ctx, tx, id, in.AssigneeIDs)
	if err != nil {
		return models.Task{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return models.Task{}, err
	}
	return models.Task{
		ID:          id,
		Title:       in.Title,
		Description: in.Description,
		Status:      in.Status,
		Priority:    in.Priority,
		AssigneeIDs: assignees,
		CreatedAt:   stamp(ts),
		UpdatedAt:   stamp(ts),
	}, nil
}

func insertAssignees(ctx context.Context, tx pgx.Tx, taskID string, ids []string) ([]string, error) {
	out := []string{}
	seen := make(map[string]bool, len(ids))
	for _, agentID := range ids {
		if agentID == "" || seen[agentID] {
			continue
		}
		seen[agentID] = true
		if _, err := tx.Exec(ctx, `INSERT INTO task_assignees(task_id, agent_id, position) VALUES($1, $2, $3)`, taskID, agentID, len(out)); err != nil {
			return nil, err
		}
		out = append(out, agentID)
	}
	return out, nil
}

func (s *Store) GetTask(ctx context.Context, id string) (models.Task, error) {
	t, err := scanTask(s.Pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE task_id = $1`, id))
	if err != nil {
		return models.Task{}, notFound("task", id, err)
	}
	if err := s.fillAssignees(ctx, []*models.Task{&t}); err != nil {
		return models.Task{}, err
	}
	return t, nil
}

func (s *Store) FindTaskByTitle(ctx context.Context, title string) (models.Task, error) {
	t, err := scanTask(s.Pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE title = $1 ORDER BY created_at ASC, seq ASC LIMIT 1`, title))
	if err != nil {
		return models.Task{}, notFound("task titled", title, err)
	}
	if err := s.fillAssignees(ctx, []*models.Task{&t}); err != nil {
		return models.Task{}, err
	}
	return t, nil
}

func (s *Store) ListTasks(ctx context.Context, f store.TaskFilter) ([]models.Task, error) {
	var (
		a     args
		where []string
	)
	if f.Status != "" {
		where = append(where, `status = `+a.add(f.Status))
	}
	if f.AssigneeID != "" {
		where = append(where, `task_id IN (SELECT task_id FROM task_assignees WHERE agent_id = `+a.add(f.AssigneeID)+`)`)
	}
	q := `SELECT ` + taskColumns + ` FROM tasks`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, ` AND `)
	}
	q += ` ORDER BY created_at DESC, seq DESC`
	if f.Limit > 0 {
		q += ` LIMIT ` + a.add(f.Limit)
	}
	rows, err := s.Pool.Query(ctx, q, a...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

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

func (s *Store) fillAssignees(ctx context.Context, tasks []*models.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	byID := make(map[string]*models.Task, len(tasks))
	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
		ids = append(ids, t.ID)
	}
	rows, err := s.Pool.Query(ctx, `SELECT task_id, agent_id FROM task_assignees WHERE task_id = ANY($1) ORDER BY task_id, position ASC`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
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

func (s *Store) SetTaskStatus(ctx context.Context, id, status string) (models.Task, error) {
	tag, err := s.Pool.Exec(ctx, `UPDATE tasks SET status = $1, updated_at = $2 WHERE task_id = $3`, status, now(), id)
	if err != nil {
		return models.Task{}, err
	}
	if tag.RowsAffected() == 0 {
		return models.Task{}, fmt.Errorf("task %s: %w", id, store.ErrNotFound)
	}
	return s.GetTask(ctx, id)
}

func (s *Store) SetTaskAssignees(ctx context.Context, id string, assigneeIDs []string, status string) (models.Task, error) {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return models.Task{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `UPDATE tasks SET status = $1, updated_at = $2 WHERE task_id = $3`, status, now(), id)
	if err != nil {
		return models.Task{}, err
	}
	if tag.RowsAffected() == 0 {
		return models.Task{}, fmt.Errorf("task %s: %w", id, store.ErrNotFound)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM task_assignees WHERE task_id = $1`, id); err != nil {
		return models.Task{}, err
	}
	if _, err := insertAssignees(ctx, tx, id, assigneeIDs); err != nil {
		return models.Task{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return models.Task{}, err
	}
	return s.GetTask(ctx, id)
}

func (s *Store) TouchTask(ctx context.Context, id string) error {
	tag, err := s.Pool.Exec(ctx, `UPDATE tasks SET updated_at = $1 WHERE task_id = $2`, now(), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("task %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// --- messages ---

func (s *Store) CreateMessage(ctx context.Context, in store.MessageInput) (models.Message, error) {
	if in.TaskID == "" || in.Content == "" {
		return models.Message{}, errors.New("message task and content required")
	}
	ts := now()
	id := uuid.NewString()
	_, err := s.Pool.Exec(ctx, `INSERT INTO messages(message_id, task_id, from_agent_id, content, created_at) VALUES($1, $2, $3, $4, $5)`,
		id, in.TaskID, in.FromAgentID, in.Content, ts)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return models.Message{}, fmt.Errorf("task %s: %w", in.TaskID, store.ErrNotFound)
		}
		return models.Message{}, err
	}
	return models.Message{ID: id, TaskID: in.TaskID, FromAgentID: in.FromAgentID, Content: in.Content, CreatedAt: stamp(ts)}, nil
}

func (s *Store) ListMessages(ctx context.Context, f store.MessageFilter) ([]models.Message, error) {
	var a args
	q := `SELECT message_id, task_id, from_agent_id, content, created_at FROM messages`
	switch {
	case f.TaskID != "":
		q += ` WHERE task_id = ` + a.add(f.TaskID)
		if f.FromAgentID != "" {
			q += ` AND from_agent_id = ` + a.add(f.FromAgentID)
		}
		q += ` ORDER BY created_at ASC, seq ASC`
	case f.FromAgentID != "":
		q += ` WHERE from_agent_id = ` + a.add(f.FromAgentID) + ` ORDER BY created_at DESC, seq DESC`
	default:
		q += ` ORDER BY created_at DESC, seq DESC`
	}
	if f.Limit > 0 {
		q += ` LIMIT ` + a.add(f.Limit)
	}
	rows, err := s.Pool.Query(ctx, q, a...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

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

func (s *Store) AppendActivity(ctx context.Context, in store.ActivityInput) (models.Activity, error) {
	if in.Type == "" {
		return models.Activity{}, errors.New("activity type required")
	}
	ts := now()
	id := uuid.NewString()
	if _, err := s.Pool.Exec(ctx, `INSERT INTO activities(activity_id, type, agent_id, message, timestamp) VALUES($1, $2, $3, $4, $5)`,
		id, in.Type, in.AgentID, in.Message, ts); err != nil {
		return models.Activity{}, err
	}
	return models.Activity{ID: id, Type: in.Type, AgentID: in.AgentID, Message: in.Message, Timestamp: stamp(ts)}, nil
}

func (s *Store) ListActivities(ctx context.Context, f store.ActivityFilter) ([]models.Activity, error) {
	var a args
	q := `SELECT activity_id, type, agent_id, message, timestamp FROM activities`
	if f.AgentID != "" {
		q += ` WHERE agent_id = ` + a.add(f.AgentID)
	}
	q += ` ORDER BY timestamp DESC, seq DESC`
	if f.Limit > 0 {
		q += ` LIMIT ` + a.add(f.Limit)
	}
	rows, err := s.Pool.Query(ctx, q, a...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Activity{}
	for rows.Next() {
		var (
			act models.Activity
			ts  int64
		)
		if err := rows.Scan(&act.ID, &act.Type, &act.AgentID, &act.Message, &ts); err != nil {
			return nil, err
		}
		act.Timestamp = stamp(ts)
		out = append(out, act)
	}
	return out, rows.Err()
}

// --- documents ---

func (s *Store) CreateDocument(ctx context.Context, in store.DocumentInput) (models.Document, error) {
	if in.Title == "" || in.Type == "" {
		return models.Document{}, errors.New("document title and type required")
	}
	ts := now()
	id := uuid.NewString()
	_, err := s.Pool.Exec(ctx, `INSERT INTO documents(`+documentColumns+`) VALUES($1, $2, $3, $4, $5, $6, $6)`,
		id, in.Title, in.Content, in.Type, in.TaskID, ts)
	if err != nil {
		return models.Document{}, err
	}
	return models.Document{ID: id, Title: in.Title, Content: in.Content, Type: in.Type, TaskID: in.TaskID, CreatedAt: stamp(ts), UpdatedAt: stamp(ts)}, nil
}

func (s *Store) GetDocument(ctx context.Context, id string) (models.Document, error) {
	d, err := scanDocument(s.Pool.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE document_id = $1`, id))
	if err != nil {
		return models.Document{}, notFound("document", id, err)
	}
	return d, nil
}

func (s *Store) UpdateDocument(ctx context.Context, id string, title, content *string) (models.Document, error) {
	var a args
	set := []string{`updated_at = ` + a.add(now())}
	if title != nil && *title != "" {
		set = append(set, `title = `+a.add(*title))
	}
	if content != nil && *content != "" {
		set = append(set, `content = `+a.add(*content))
	}
	q := `UPDATE documents SET ` + strings.Join(set, `, `) + ` WHERE document_id = ` + a.add(id)
	tag, err := s.Pool.Exec(ctx, q, a...)
	if err != nil {
		return models.Document{}, err
	}
	if tag.RowsAffected() == 0 {
		return models.Document{}, fmt.Errorf("document %s: %w", id, store.ErrNotFound)
	}
	return s.GetDocument(ctx, id)
}

func (s *Store) ListDocuments(ctx context.Context, f store.DocumentFilter) ([]models.Document, error) {
	var (
		a     args
		where []string
	)
	if f.TaskID != "" {
		where = append(where, `task_id = `+a.add(f.TaskID))
	}
	if f.Type != "" {
		where = append(where, `type = `+a.add(f.Type))
	}
	q := `SELECT ` + documentColumns + ` FROM documents`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, ` AND `)
	}
	q += ` ORDER BY created_at ASC, seq ASC`
	rows, err := s.Pool.Query(ctx, q, a...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

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

func (s *Store) CreateNotification(ctx context.Context, in store.NotificationInput) (models.Notification, error) {
	if in.MentionedAgentID == "" {
		return models.Notification{}, errors.New("mentioned agent required")
	}
	ts := now()
	id := uuid.NewString()
	_, err := s.Pool.Exec(ctx, `
INSERT INTO notifications(notification_id, mentioned_agent_id, task_id, content, delivered, created_at, delivered_at)
VALUES($1, $2, $3, $4, FALSE, $5, NULL)`, id, in.MentionedAgentID, in.TaskID, in.Content, ts)
	if err != nil {
		return models.Notification{}, err
	}
	return models.Notification{ID: id, MentionedAgentID: in.MentionedAgentID, TaskID: in.TaskID, Content: in.Content, CreatedAt: stamp(ts)}, nil
}

func (s *Store) ListNotifications(ctx context.Context, f store.NotificationFilter) ([]models.Notification, error) {
	var (
		a     args
		where []string
	)
	if f.AgentID != "" {
		where = append(where, `mentioned_agent_id = `+a.add(f.AgentID))
	}
	if f.UndeliveredOnly {
		where = append(where, `delivered = FALSE`)
	}
	q := `SELECT notification_id, mentioned_agent_id, task_id, content, delivered, created_at, delivered_at FROM notifications`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, ` AND `)
	}
	q += ` ORDER BY created_at ASC, seq ASC`
	if f.Limit > 0 {
		q += ` LIMIT ` + a.add(f.Limit)
	}
	rows, err := s.Pool.Query(ctx, q, a...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Notification{}
	for rows.Next() {
		var (
			n           models.Notification
			createdAt   int64
			deliveredAt *int64
		)
		if err := rows.Scan(&n.ID, &n.MentionedAgentID, &n.TaskID, &n.Content, &n.Delivered, &createdAt, &deliveredAt); err != nil {
			return nil, err
		}
		n.CreatedAt = stamp(createdAt)
		if deliveredAt != nil {
			t := stamp(*deliveredAt)
			n.DeliveredAt = &t
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) MarkNotificationDelivered(ctx context.Context, id string) error {
	tag, err := s.Pool.Exec(ctx, `UPDATE notifications SET delivered = TRUE, delivered_at = $1 WHERE notification_id = $2 AND delivered = FALSE`, now(), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists int
		if err := s.Pool.QueryRow(ctx, `SELECT 1 FROM notifications WHERE notification_id = $1`, id).Scan(&exists); err != nil {
			return notFound("notification", id, err)
		}
	}
	return nil
}
