// Package summarize turns message windows into LLM-generated reports using
// chunked map-reduce over a rotating credential pool.
package summarize

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/tgmon/internal/store"
)

// ChunkSize is the map-reduce split threshold and chunk length.
const ChunkSize = 300

// Progress receives milestone telemetry: a stage label and current/total
// steps on a 0..10 scale. Observers rate-limit their own UI updates.
type Progress func(stage string, current, total int)

// Options selects the window and behavior of one summarization.
type Options struct {
	Hours    int    // window size; 24 when zero and Since unset
	Since    string // explicit window start, overrides Hours with Until
	Until    string
	GroupID  *int64
	Save     bool
	Progress Progress
}

// Summarizer reads message windows from the store and produces reports.
// Failures surface as report strings starting with the failure marker, not
// as errors: callers decide the UX.
type Summarizer struct {
	st           *store.Store
	llm          *LLMClient
	model        string
	systemPrompt string
}

// New builds a summarizer. An empty systemPrompt selects the default.
func New(st *store.Store, llm *LLMClient, model, systemPrompt string) *Summarizer {
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}
	return &Summarizer{st: st, llm: llm, model: model, systemPrompt: systemPrompt}
}

// Summarize produces one report for the window in opts.
func (s *Summarizer) Summarize(ctx context.Context, opts Options) string {
	p := progressFunc(opts.Progress)
	since, until := s.window(opts)

	p("读取消息", 1)
	msgs, err := s.st.GetMessagesSince(since, until, opts.GroupID)
	if err != nil {
		return fmt.Sprintf("%s 读取消息失败: %v", failPrefix, err)
	}
	if len(msgs) == 0 {
		return noRecordsSentinel
	}

	content := s.mapReduce(ctx, msgs, p)
	if strings.HasPrefix(content, failPrefix) {
		return content
	}
	content = Scrub(content)

	if opts.Save {
		if _, err := s.st.SaveSummary(opts.GroupID, since, until, len(msgs), content, s.model); err != nil {
			slog.Error("summary save failed", "error", err)
		}
	}
	p("完成", 10)
	return content
}

// mapReduce summarizes directly for small windows and splits larger ones
// into ChunkSize chunks summarized concurrently, then merged.
func (s *Summarizer) mapReduce(ctx context.Context, msgs []*store.Message, p func(stage string, current int)) string {
	if len(msgs) <= ChunkSize {
		p("生成摘要", 3)
		out, err := s.llm.Chat(ctx, s.systemPrompt, formatMessages(msgs))
		if err != nil {
			return fmt.Sprintf("%s 摘要生成失败: %v", failPrefix, err)
		}
		return out
	}

	var chunks [][]*store.Message
	for start := 0; start < len(msgs); start += ChunkSize {
		end := start + ChunkSize
		if end > len(msgs) {
			end = len(msgs)
		}
		chunks = append(chunks, msgs[start:end])
	}
	total := len(chunks)
	slog.Info("chunked summarization", "messages", len(msgs), "chunks", total)

	partials := make([]string, total)
	var done int32
	g, gctx := errgroup.WithContext(ctx)
	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			prompt := formatMessages(chunk) + "\n\n" + chunkInstruction(i+1, total)
			out, err := s.llm.Chat(gctx, s.systemPrompt, prompt)
			if err != nil {
				// A failed chunk is dropped, not fatal: the merge works
				// with whatever survived.
				slog.Warn("chunk summary failed", "chunk", i+1, "error", err)
			} else {
				partials[i] = out
			}
			n := atomic.AddInt32(&done, 1)
			p(fmt.Sprintf("分段摘要 %d/%d", n, total), 2+int(n)*6/total)
			return nil
		})
	}
	g.Wait()

	var ok []string
	for _, part := range partials {
		if part != "" {
			ok = append(ok, part)
		}
	}
	if len(ok) == 0 {
		return failPrefix + " 摘要生成失败：所有分段调用均失败"
	}
	if len(ok) == 1 {
		return ok[0]
	}

	p("合并分段摘要", 9)
	merged, err := s.llm.Chat(ctx, mergeSystemPrompt, mergeUserPreamble+strings.Join(ok, chunkJoin))
	if err != nil {
		// Degraded but usable: hand back the raw partials.
		slog.Warn("merge call failed, joining partials", "error", err)
		return strings.Join(ok, chunkJoin)
	}
	return merged
}

// SummarizeAllGroups runs the per-group mode: summarize each group with
// messages in the window concurrently, then produce a cross-group overview.
// One summary row is written with a nil group id covering all of them.
func (s *Summarizer) SummarizeAllGroups(ctx context.Context, hours int, save bool, p Progress) string {
	prog := progressFunc(p)
	if hours <= 0 {
		hours = 24
	}
	since := store.ISOTime(time.Now().Add(-time.Duration(hours) * time.Hour))
	until := store.ISOTime(time.Now())

	prog("读取群组", 1)
	groups, err := s.st.GetGroups()
	if err != nil {
		return fmt.Sprintf("%s 读取群组失败: %v", failPrefix, err)
	}

	type item struct {
		group store.Group
		count int
	}
	var work []item
	totalMessages := 0
	for _, g := range groups {
		gid := g.ID
		n, err := s.st.CountMessagesSince(since, &gid)
		if err != nil || n == 0 {
			continue
		}
		work = append(work, item{group: g, count: n})
		totalMessages += n
	}
	if len(work) == 0 {
		return noRecordsSentinel
	}

	var mu sync.Mutex
	parts := make([]string, len(work))
	var done int32
	g, gctx := errgroup.WithContext(ctx)
	for i, it := range work {
		i, it := i, it
		g.Go(func() error {
			gid := it.group.ID
			out := s.Summarize(gctx, Options{Hours: hours, GroupID: &gid})
			mu.Lock()
			if !strings.HasPrefix(out, failPrefix) && out != noRecordsSentinel {
				parts[i] = fmt.Sprintf("📌 %s\n\n%s", it.group.Title, out)
			}
			mu.Unlock()
			n := atomic.AddInt32(&done, 1)
			prog(fmt.Sprintf("群组摘要 %d/%d", n, len(work)), 1+int(n)*7/len(work))
			return nil
		})
	}
	g.Wait()

	var ok []string
	for _, part := range parts {
		if part != "" {
			ok = append(ok, part)
		}
	}
	if len(ok) == 0 {
		return failPrefix + " 摘要生成失败：所有群组摘要均失败"
	}

	var overview string
	if len(ok) == 1 {
		overview = ok[0]
	} else {
		prog("生成总体概览", 9)
		out, err := s.llm.Chat(ctx, mergeSystemPrompt, crossGroupPrompt(strings.Join(ok, crossGroupJoin)))
		if err != nil {
			slog.Warn("cross-group overview failed, joining group parts", "error", err)
			out = strings.Join(ok, crossGroupJoin)
		}
		overview = out
	}
	overview = Scrub(overview)

	if save {
		if _, err := s.st.SaveSummary(nil, since, until, totalMessages, overview, s.model); err != nil {
			slog.Error("summary save failed", "error", err)
		}
	}
	prog("完成", 10)
	return overview
}

// QuickDigest summarizes the last hours without persisting anything.
func (s *Summarizer) QuickDigest(ctx context.Context, hours int) string {
	return s.Summarize(ctx, Options{Hours: hours})
}

// DailyReport prepends the headline stats to a saved 24 h per-group report.
func (s *Summarizer) DailyReport(ctx context.Context) string {
	report := s.SummarizeAllGroups(ctx, 24, true, nil)

	st, err := s.st.GetStats()
	if err != nil {
		return report
	}
	header := fmt.Sprintf("📊 今日 %d 条消息 / %d 位活跃用户 / %d 个群组\n\n",
		st.TodayMessages, st.ActiveUsers, st.TotalGroups)
	return header + report
}

// window resolves the [since, until) range from the options.
func (s *Summarizer) window(opts Options) (string, string) {
	if opts.Since != "" && opts.Until != "" {
		return opts.Since, opts.Until
	}
	hours := opts.Hours
	if hours <= 0 {
		hours = 24
	}
	now := time.Now()
	return store.ISOTime(now.Add(-time.Duration(hours) * time.Hour)), store.ISOTime(now)
}

// progressFunc adapts an optional observer into a two-argument milestone
// reporter on the fixed 0..10 scale.
func progressFunc(p Progress) func(stage string, current int) {
	if p == nil {
		return func(string, int) {}
	}
	return func(stage string, current int) {
		p(stage, current, 10)
	}
}
