// Package commands parses and executes prefix commands from chat
// (!moderate_now, !user_score, !leaderboard, !modstats, !help).
package commands

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/sentinel/mod-bot/internal/store"
)

// Engine is the slice of the moderation engine the commands need.
type Engine interface {
	HasWindow(channelID string) bool
	TriggerDispatch(ctx context.Context, channelID string) (string, error)
}

// Store is the read side of the persistence layer the commands need.
type Store interface {
	GetUserScore(ctx context.Context, userID string) (int, error)
	TopUsers(ctx context.Context, limit int) ([]store.RankedUser, error)
	ModerationStats(ctx context.Context) (total int, channels int, err error)
}

// Notifier posts a text message to a channel on the chat platform.
type Notifier interface {
	PostChannel(ctx context.Context, channelID, text string) error
}

// LeaderboardSize is the number of users shown by the leaderboard command.
const LeaderboardSize = 10

// Router dispatches prefix commands to their handlers.
type Router struct {
	prefix   string
	engine   Engine
	store    Store
	notifier Notifier
}

// NewRouter creates a command router using the given prefix sentinel.
func NewRouter(prefix string, engine Engine, st Store, notifier Notifier) *Router {
	if prefix == "" {
		prefix = "!"
	}
	return &Router{prefix: prefix, engine: engine, store: st, notifier: notifier}
}

// IsCommand reports whether the text is a command invocation.
func (r *Router) IsCommand(text string) bool {
	return strings.HasPrefix(text, r.prefix)
}

// Handle parses a command message and executes it, posting the reply to the
// originating channel. Unknown commands are ignored so other bots can share
// the prefix.
func (r *Router) Handle(ctx context.Context, channelID, text string) {
	fields := strings.Fields(strings.TrimPrefix(text, r.prefix))
	if len(fields) == 0 {
		return
	}
	name, args := fields[0], fields[1:]

	var err error
	switch name {
	case "moderate_now":
		err = r.moderateNow(ctx, channelID)
	case "user_score":
		err = r.userScore(ctx, channelID, args)
	case "leaderboard":
		err = r.leaderboard(ctx, channelID)
	case "modstats":
		err = r.modStats(ctx, channelID)
	case "help":
		err = r.help(ctx, channelID)
	default:
		log.Printf("[commands] ignoring unknown command %q in channel=%s", name, channelID)
		return
	}
	if err != nil {
		log.Printf("[commands] %s failed in channel=%s: %v", name, channelID, err)
	}
}

// moderateNow runs a moderation cycle immediately. The engine posts the
// cycle summary itself, so the only reply issued here is the no-window case.
func (r *Router) moderateNow(ctx context.Context, channelID string) error {
	if !r.engine.HasWindow(channelID) {
		return r.notifier.PostChannel(ctx, channelID, "No ongoing conversation to moderate.")
	}
	_, err := r.engine.TriggerDispatch(ctx, channelID)
	return err
}

func (r *Router) userScore(ctx context.Context, channelID string, args []string) error {
	if len(args) != 1 {
		return r.notifier.PostChannel(ctx, channelID,
			fmt.Sprintf("Usage: %suser_score <user>", r.prefix))
	}

	user := strings.TrimPrefix(args[0], "@")
	score, err := r.store.GetUserScore(ctx, user)
	if err != nil {
		return fmt.Errorf("commands: user score: %w", err)
	}
	return r.notifier.PostChannel(ctx, channelID, fmt.Sprintf("%s's score: %d", user, score))
}

func (r *Router) leaderboard(ctx context.Context, channelID string) error {
	top, err := r.store.TopUsers(ctx, LeaderboardSize)
	if err != nil {
		return fmt.Errorf("commands: leaderboard: %w", err)
	}

	var b strings.Builder
	b.WriteString("🏆 Top 10 Users:\n\n")
	for i, u := range top {
		fmt.Fprintf(&b, "%d. %s: %d points\n", i+1, u.DisplayName, u.Score)
	}
	return r.notifier.PostChannel(ctx, channelID, b.String())
}

func (r *Router) modStats(ctx context.Context, channelID string) error {
	total, channels, err := r.store.ModerationStats(ctx)
	if err != nil {
		return fmt.Errorf("commands: modstats: %w", err)
	}

	text := fmt.Sprintf("📊 Moderation Statistics:\n\nTotal messages moderated: %d\nChannels moderated: %d\n",
		total, channels)
	return r.notifier.PostChannel(ctx, channelID, text)
}

func (r *Router) help(ctx context.Context, channelID string) error {
	p := r.prefix
	text := "Here are the commands you can use:\n" +
		fmt.Sprintf("`%smoderate_now`: Manually moderate the ongoing conversation in this channel.\n", p) +
		fmt.Sprintf("`%suser_score @user`: Check the score of a specific user.\n", p) +
		fmt.Sprintf("`%sleaderboard`: Display the top 10 users with the highest scores.\n", p) +
		fmt.Sprintf("`%smodstats`: Display moderation statistics.\n", p) +
		"The score will be adjusted based on message harmfulness.\n" +
		"\n" +
		"For additional assistance, please reach out to a moderator."
	return r.notifier.PostChannel(ctx, channelID, text)
}
