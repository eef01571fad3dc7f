package mission

import (
	"context"
	"errors"

	"github.com/ankittk/missioncontrol/internal/store"
	"github.com/ankittk/missioncontrol/pkg/models"
)

// SeedCounts reports how many fixtures were created and how many already existed.
type SeedCounts struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
}

// SeedResult is returned by Seed.
type SeedResult struct {
	Agents SeedCounts `json:"agents"`
	Tasks  SeedCounts `json:"tasks"`
}

var seedAgents = []store.AgentInput{
	{Name: "Jarvis", Role: "Squad Lead", Emoji: "🤖", Color: "bg-blue-500", SessionKey: "agent:main:main",
		Description: "Coordinator. Handles direct requests, delegates, monitors progress. Primary interface."},
	{Name: "Shuri", Role: "Product Analyst", Emoji: "🔍", Color: "bg-purple-500", SessionKey: "agent:product-analyst:main",
		Description: "Skeptical tester. Finds edge cases and UX issues. Tests competitors."},
	{Name: "Fury", Role: "Customer Researcher", Emoji: "📊", Color: "bg-red-500", SessionKey: "agent:customer-researcher:main",
		Description: "Deep researcher. Every claim comes with receipts. Reads G2 reviews for fun."},
	{Name: "Vision", Role: "SEO Analyst", Emoji: "👁️", Color: "bg-indigo-500", SessionKey: "agent:seo-analyst:main",
		Description: "Thinks in keywords and search intent. Makes sure content can rank."},
	{Name: "Loki", Role: "Content Writer", Emoji: "✍️", Color: "bg-green-500", SessionKey: "agent:content-writer:main",
		Description: "Words are his craft. Pro-Oxford comma. Anti-passive voice."},
	{Name: "Friday", Role: "Developer", Emoji: "⚡", Color: "bg-cyan-500", SessionKey: "agent:developer:main",
		Description: "Code is poetry. Clean, tested, documented."},
}

var seedTasks = []store.TaskInput{
	{Title: "Set up Mission Control Dashboard", Description: "Create the initial dashboard with agent cards and task board"},
	{Title: "Research competitor pricing", Description: "Gather intel on competitor pricing strategies for architop.agency"},
	{Title: "Write landing page copy", Description: "Draft compelling copy for architop.agency landing page"},
}

// Seed loads the starter squad and backlog. Agents are matched by session key and tasks
// by title, so running it twice creates nothing the second time. No activities are logged.
func (s *Service) Seed(ctx context.Context) (SeedResult, error) {
	var res SeedResult
	log := s.logger()
	for _, in := range seedAgents {
		_, err := s.Store.GetAgentBySessionKey(ctx, in.SessionKey)
		if err == nil {
			res.Agents.Skipped++
			log.Debug("seed: agent exists", "name", in.Name)
			continue
		}
		if !errors.Is(err, store.ErrNotFound) {
			return res, err
		}
		in.Status = models.AgentIdle
		if in.Name == "Jarvis" {
			in.Status = models.AgentActive
		}
		if _, err := s.Store.CreateAgent(ctx, in); err != nil {
			return res, err
		}
		res.Agents.Created++
		log.Info("seed: created agent", "name", in.Name)
	}
	for _, in := range seedTasks {
		_, err := s.Store.FindTaskByTitle(ctx, in.Title)
		if err == nil {
			res.Tasks.Skipped++
			log.Debug("seed: task exists", "title", in.Title)
			continue
		}
		if !errors.Is(err, store.ErrNotFound) {
			return res, err
		}
		in.Status = models.StatusInbox
		if _, err := s.Store.CreateTask(ctx, in); err != nil {
			return res, err
		}
		res.Tasks.Created++
		log.Info("seed: created task", "title", in.Title)
	}
	return res, nil
}
