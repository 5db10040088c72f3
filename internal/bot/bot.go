// Package bot hosts the owner-only control bot on the platform bot API.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/mymmrac/telego"

	"github.com/nextlevelbuilder/tgmon/internal/pool"
	"github.com/nextlevelbuilder/tgmon/internal/store"
	"github.com/nextlevelbuilder/tgmon/internal/summarize"
)

const resultClipRunes = 4000

// Bot is the interactive control surface. Only the configured owner is
// answered; everyone else is ignored.
type Bot struct {
	bot     *telego.Bot
	ownerID int64
	st      *store.Store
	pool    *pool.Pool
	jobs    *summarize.JobRunner
}

// New creates the control bot.
func New(token string, ownerID int64, st *store.Store, p *pool.Pool, jobs *summarize.JobRunner) (*Bot, error) {
	b, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("create control bot: %w", err)
	}
	return &Bot{bot: b, ownerID: ownerID, st: st, pool: p, jobs: jobs}, nil
}

// Run long-polls for commands until ctx is canceled.
func (b *Bot) Run(ctx context.Context) error {
	updates, err := b.bot.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
		Timeout:        30,
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		return fmt.Errorf("start long polling: %w", err)
	}
	slog.Info("control bot polling", "owner", b.ownerID)

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			msg := update.Message
			if msg == nil || msg.From == nil || msg.From.ID != b.ownerID {
				continue
			}
			b.dispatch(ctx, msg)
		}
	}
}

func (b *Bot) dispatch(ctx context.Context, msg *telego.Message) {
	text := strings.TrimSpace(msg.Text)
	cmd, args, _ := strings.Cut(text, " ")
	if i := strings.Index(cmd, "@"); i > 0 {
		cmd = cmd[:i]
	}

	switch cmd {
	case "/status":
		b.reply(ctx, b.statusText())
	case "/stats":
		b.reply(ctx, b.statsText())
	case "/search":
		b.reply(ctx, b.searchText(strings.TrimSpace(args)))
	case "/alerts":
		b.reply(ctx, b.alertsText(strings.TrimSpace(args)))
	case "/summary":
		b.startSummary(ctx, strings.TrimSpace(args))
	case "/start", "/help":
		b.reply(ctx, "可用命令:\n/status 会话状态\n/stats 数据统计\n/search <关键词>\n/alerts on|off\n/summary [小时]")
	}
}

func (b *Bot) statusText() string {
	statuses := b.pool.Status()
	if len(statuses) == 0 {
		return "没有运行中的会话"
	}
	var sb strings.Builder
	sb.WriteString("会话状态:\n")
	for _, s := range statuses {
		fmt.Fprintf(&sb, "• %s: %s (%d 个群组", s.Name, s.State, s.Groups)
		if s.LastSeen != "" {
			fmt.Fprintf(&sb, ", 最近消息 %s", s.LastSeen)
		}
		sb.WriteString(")\n")
	}
	return sb.String()
}

func (b *Bot) statsText() string {
	st, err := b.st.GetStats()
	if err != nil {
		return "统计读取失败: " + err.Error()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "📊 总消息 %d 条，今日 %d 条\n活跃用户 %d，群组 %d，链接 %d\n",
		st.TotalMessages, st.TodayMessages, st.ActiveUsers, st.TotalGroups, st.TotalLinks)
	for i, g := range st.Groups {
		if i >= 10 {
			break
		}
		fmt.Fprintf(&sb, "• %s: %d\n", g.Title, g.MessageCount)
	}
	return sb.String()
}

func (b *Bot) searchText(keyword string) string {
	if keyword == "" {
		return "用法: /search <关键词>"
	}
	msgs, err := b.st.SearchMessages(keyword, 10)
	if err != nil {
		return "搜索失败: " + err.Error()
	}
	if len(msgs) == 0 {
		return "没有找到匹配的消息"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "🔍 «%s» 共 %d 条:\n", keyword, len(msgs))
	for _, m := range msgs {
		body := m.TextOrEmpty()
		if runes := []rune(body); len(runes) > 80 {
			body = string(runes[:80]) + "..."
		}
		fmt.Fprintf(&sb, "[%s] %s: %s\n", m.Date, m.SenderName, body)
	}
	return sb.String()
}

func (b *Bot) alertsText(arg string) string {
	switch strings.ToLower(arg) {
	case "on":
		if err := b.st.SetSetting("alerts_enabled", "true"); err != nil {
			return "设置失败: " + err.Error()
		}
		return "🔔 关键词提醒已开启"
	case "off":
		if err := b.st.SetSetting("alerts_enabled", "false"); err != nil {
			return "设置失败: " + err.Error()
		}
		return "🔕 关键词提醒已关闭"
	default:
		enabled, _ := b.st.GetBoolSetting("alerts_enabled", true)
		state := "开启"
		if !enabled {
			state = "关闭"
		}
		return "当前提醒状态: " + state + "\n用法: /alerts on|off"
	}
}

// startSummary launches an async per-group summary job and edits one status
// message with its progress. Edits are paced by the poll interval so the bot
// API is not flooded.
func (b *Bot) startSummary(ctx context.Context, arg string) {
	hours := 24
	if arg != "" {
		if n, err := strconv.Atoi(arg); err == nil && n > 0 && n <= 24*7 {
			hours = n
		}
	}

	jobID, err := b.jobs.Start(nil, hours, summarize.ModePerGroup)
	if err != nil {
		b.reply(ctx, "任务创建失败: "+err.Error())
		return
	}

	sent, err := b.bot.SendMessage(ctx, &telego.SendMessageParams{
		ChatID: telego.ChatID{ID: b.ownerID},
		Text:   fmt.Sprintf("⏳ 正在生成最近 %d 小时的摘要...", hours),
	})
	if err != nil {
		slog.Warn("summary status send failed", "error", err)
		return
	}

	go b.trackJob(ctx, jobID, sent.MessageID)
}

func (b *Bot) trackJob(ctx context.Context, jobID string, messageID int) {
	lastProgress := -1
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		j, err := b.st.GetSummaryJob(jobID)
		if err != nil || j == nil {
			continue
		}
		switch j.Status {
		case store.JobDone:
			b.edit(ctx, messageID, clipRunes(j.Result, resultClipRunes))
			return
		case store.JobError:
			b.edit(ctx, messageID, j.ErrorMsg)
			return
		default:
			if j.Progress != lastProgress {
				lastProgress = j.Progress
				b.edit(ctx, messageID, fmt.Sprintf("⏳ %d%% %s", j.Progress, j.ProgressText))
			}
		}
	}
}

func (b *Bot) reply(ctx context.Context, text string) {
	_, err := b.bot.SendMessage(ctx, &telego.SendMessageParams{
		ChatID: telego.ChatID{ID: b.ownerID},
		Text:   clipRunes(text, resultClipRunes),
	})
	if err != nil {
		slog.Warn("control bot send failed", "error", err)
	}
}

func (b *Bot) edit(ctx context.Context, messageID int, text string) {
	_, err := b.bot.EditMessageText(ctx, &telego.EditMessageTextParams{
		ChatID:    telego.ChatID{ID: b.ownerID},
		MessageID: messageID,
		Text:      clipRunes(text, resultClipRunes),
	})
	if err != nil {
		slog.Debug("control bot edit failed", "error", err)
	}
}

func clipRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
