package summarize

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/tgmon/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "sum.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// fakeLLM is an OpenAI-compatible endpoint with per-call scripting.
type fakeLLM struct {
	mu         sync.Mutex
	chunkCalls int
	mergeCalls int
	failChunks bool
	failMerge  bool
	srv        *httptest.Server
}

func newFakeLLM(t *testing.T) *fakeLLM {
	f := &fakeLLM{}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		json.NewDecoder(r.Body).Decode(&req)
		system := ""
		if len(req.Messages) > 0 && req.Messages[0].Role == "system" {
			system = req.Messages[0].Content
		}
		isMerge := system == mergeSystemPrompt

		f.mu.Lock()
		if isMerge {
			f.mergeCalls++
		} else {
			f.chunkCalls++
		}
		fail := (isMerge && f.failMerge) || (!isMerge && f.failChunks)
		f.mu.Unlock()

		if fail {
			// 400 fails fast without retry backoff.
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":{"message":"scripted failure"}}`)
			return
		}
		reply := "chunk summary"
		if isMerge {
			reply = "merged summary"
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"content": reply}}},
		})
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeLLM) client() *LLMClient {
	return NewLLMClient(f.srv.URL+"/v1/chat/completions", "test-model", 1024, []string{"k1", "k2"}, 3)
}

func (f *fakeLLM) counts() (chunks, merges int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chunkCalls, f.mergeCalls
}

func fabricate(n int) []*store.Message {
	msgs := make([]*store.Message, n)
	base := time.Now().Add(-time.Hour)
	for i := range msgs {
		text := fmt.Sprintf("message %d", i)
		msgs[i] = &store.Message{
			ID: int64(i + 1), GroupID: -1, SenderName: "bob",
			Text: &text, Date: store.ISOTime(base.Add(time.Duration(i) * time.Second)),
		}
	}
	return msgs
}

func TestChunkingCallCount(t *testing.T) {
	f := newFakeLLM(t)
	s := New(newTestStore(t), f.client(), "test-model", "")

	out := s.mapReduce(context.Background(), fabricate(650), func(string, int) {})
	if out != "merged summary" {
		t.Fatalf("result = %q", out)
	}
	chunks, merges := f.counts()
	if chunks != 3 || merges != 1 {
		t.Fatalf("calls = %d chunk + %d merge, want 3 + 1", chunks, merges)
	}
}

func TestMergeFallbackJoinsPartials(t *testing.T) {
	f := newFakeLLM(t)
	f.failMerge = true
	s := New(newTestStore(t), f.client(), "test-model", "")

	out := s.mapReduce(context.Background(), fabricate(650), func(string, int) {})
	if strings.HasPrefix(out, failPrefix) {
		t.Fatalf("fallback must not fail: %q", out)
	}
	if strings.Count(out, "chunk summary") != 3 || !strings.Contains(out, "\n\n---\n\n") {
		t.Fatalf("fallback = %q, want three partials joined with ---", out)
	}
}

func TestAllChunksFail(t *testing.T) {
	f := newFakeLLM(t)
	f.failChunks = true
	st := newTestStore(t)
	s := New(st, f.client(), "test-model", "")

	for _, m := range fabricate(650) {
		if err := st.InsertMessage(m); err != nil {
			t.Fatal(err)
		}
	}
	out := s.Summarize(context.Background(), Options{Hours: 24, Save: true})
	if !strings.HasPrefix(out, failPrefix) {
		t.Fatalf("result = %q, want failure marker", out)
	}
	// No summary row is written for a failed run.
	rows, err := st.GetLatestSummaries(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 0 {
		t.Fatalf("summaries = %+v, want none", rows)
	}
	if _, merges := f.counts(); merges != 0 {
		t.Fatal("merge called with no surviving partials")
	}
}

func TestEmptyWindowSentinel(t *testing.T) {
	f := newFakeLLM(t)
	s := New(newTestStore(t), f.client(), "test-model", "")
	out := s.Summarize(context.Background(), Options{Hours: 1})
	if out != noRecordsSentinel {
		t.Fatalf("result = %q, want no-records sentinel", out)
	}
}

// Prompt wording is a fixed contract with downstream report consumers; any
// rewording is a breaking change.
func TestPromptWording(t *testing.T) {
	if defaultSystemPrompt != "你是一个 Telegram 群聊分析助手，请用中文输出结构化摘要。请使用纯文本格式，不要使用 Markdown 语法（不要用 # * ** __ 等符号），改用数字编号和物理换行来排版。" {
		t.Fatalf("default system prompt changed: %q", defaultSystemPrompt)
	}
	if mergeSystemPrompt != "你是一个信息合并助手。请将多个分析结果合并为一份结构化摘要。请使用纯文本格式，不要使用 Markdown 语法（不要用 # * ** __ 等符号）。" {
		t.Fatalf("merge system prompt changed: %q", mergeSystemPrompt)
	}
	if noRecordsSentinel != "📭 该时间段内没有消息记录。" {
		t.Fatalf("no-records sentinel changed: %q", noRecordsSentinel)
	}
	if got := chunkInstruction(2, 3); got != "(这是第 2 批消息，共 3 批，请先提取这一批的要点)" {
		t.Fatalf("chunk instruction changed: %q", got)
	}

	p := crossGroupPrompt("DATA")
	if !strings.HasPrefix(p, "以下是各个 Telegram 群组的独立分析结果。\n请将它们整合为一份完整的跨群总览报告，格式如下：\n\n【今日速览】\n") {
		t.Fatalf("cross-group template head changed: %q", p)
	}
	for _, want := range []string{
		"【今日速览】", "【各群动态】", "【需要关注的信息】", "【风险与注意事项】", "【行动建议】",
		"严禁使用 # * ** __ 等 Markdown 符号，列表项用「•」。\n\n各群分析数据如下：\n\nDATA",
	} {
		if !strings.Contains(p, want) {
			t.Fatalf("cross-group template missing %q", want)
		}
	}
	if strings.Count(p, "────────\n") != 4 {
		t.Fatalf("cross-group template separators = %d, want 4", strings.Count(p, "────────\n"))
	}
	if chunkJoin != "\n\n---\n\n" || crossGroupJoin != "\n\n────────\n\n" {
		t.Fatal("fallback join separators changed")
	}
}

// A merge request carries the fixed preamble and the chunk partials joined
// with the chunk separator.
func TestMergeRequestShape(t *testing.T) {
	var mergeBody string
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		json.NewDecoder(r.Body).Decode(&req)
		if len(req.Messages) == 2 && req.Messages[0].Content == mergeSystemPrompt {
			mu.Lock()
			mergeBody = req.Messages[1].Content
			mu.Unlock()
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"content": "part"}}},
		})
	}))
	defer srv.Close()

	llm := NewLLMClient(srv.URL+"/v1/chat/completions", "test-model", 1024, []string{"k1"}, 3)
	s := New(newTestStore(t), llm, "test-model", "")
	s.mapReduce(context.Background(), fabricate(650), func(string, int) {})

	mu.Lock()
	defer mu.Unlock()
	if !strings.HasPrefix(mergeBody, mergeUserPreamble) {
		t.Fatalf("merge body missing preamble: %q", mergeBody)
	}
	if strings.Count(mergeBody, chunkJoin) != 2 {
		t.Fatalf("merge body = %q, want 3 partials joined twice", mergeBody)
	}
}

func TestSummarizeSavesRow(t *testing.T) {
	f := newFakeLLM(t)
	st := newTestStore(t)
	s := New(st, f.client(), "test-model", "")
	for _, m := range fabricate(10) {
		if err := st.InsertMessage(m); err != nil {
			t.Fatal(err)
		}
	}

	var milestones []int
	out := s.Summarize(context.Background(), Options{Hours: 24, Save: true,
		Progress: func(_ string, cur, total int) {
			if total != 10 {
				panic("unexpected total")
			}
			milestones = append(milestones, cur)
		}})
	if strings.HasPrefix(out, failPrefix) {
		t.Fatalf("summarize failed: %q", out)
	}

	rows, err := st.GetLatestSummaries(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].MessageCount != 10 || rows[0].Model != "test-model" {
		t.Fatalf("summary rows = %+v", rows)
	}
	if len(milestones) == 0 || milestones[len(milestones)-1] != 10 {
		t.Fatalf("milestones = %v, want ending at 10", milestones)
	}
	for i := 1; i < len(milestones); i++ {
		if milestones[i] < milestones[i-1] {
			t.Fatalf("milestones not monotonic: %v", milestones)
		}
	}
}

func TestKeyPoolFairness(t *testing.T) {
	pool := NewKeyPool([]string{"a", "b"}, 2)
	counts := map[string]int{}
	for i := 0; i < 40; i++ {
		k, err := pool.Acquire(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		counts[k]++
		pool.Release(k)
	}
	if counts["a"] != 20 || counts["b"] != 20 {
		t.Fatalf("key usage = %v, want even split", counts)
	}
	if pool.Free() != 4 {
		t.Fatalf("free slots = %d, want 4", pool.Free())
	}
}

func TestKeyPoolBlocksAtCapacity(t *testing.T) {
	pool := NewKeyPool([]string{"a"}, 1)
	k, _ := pool.Acquire(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := pool.Acquire(ctx); err == nil {
		t.Fatal("acquire succeeded with all slots held")
	}

	pool.Release(k)
	if _, err := pool.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
}

func TestScrubIdempotent(t *testing.T) {
	inputs := []string{
		"# Heading\n**bold** and *italic* text\n* bullet one\n- bullet two\n`code`\n\n\n\n\nend",
		"plain text, nothing to scrub",
		"_under_ and __double__\n###\n*\n",
		"",
	}
	for _, in := range inputs {
		once := Scrub(in)
		twice := Scrub(once)
		if once != twice {
			t.Fatalf("scrub not idempotent:\n in: %q\nonce: %q\ntwice: %q", in, once, twice)
		}
		if strings.Contains(once, "**") || strings.HasPrefix(once, "#") {
			t.Fatalf("markdown survived scrub: %q", once)
		}
	}
}

func TestScrubBullets(t *testing.T) {
	out := Scrub("* first\n- second\n+ third")
	for _, line := range strings.Split(out, "\n") {
		if !strings.HasPrefix(line, "• ") {
			t.Fatalf("bullet not converted: %q", out)
		}
	}
}

func TestTruncateLong(t *testing.T) {
	long := strings.Repeat("x", 1200)
	got := truncateLong(long)
	if !strings.Contains(got, truncMarker) {
		t.Fatal("marker missing")
	}
	if n := len([]rune(got)); n != longTextKeep*2+len([]rune(truncMarker)) {
		t.Fatalf("truncated length = %d", n)
	}
	if short := truncateLong("short"); short != "short" {
		t.Fatalf("short text altered: %q", short)
	}
}

func TestFormatMessagesGroupHeaders(t *testing.T) {
	a, b := "hello", "world"
	fwd := "user:5"
	rid := int64(9)
	msgs := []*store.Message{
		{ID: 1, GroupID: -1, GroupTitle: "Alpha", SenderName: "ann", Text: &a, Date: "2026-01-02T03:04:05Z"},
		{ID: 2, GroupID: -2, GroupTitle: "Beta", SenderName: "ben", Text: &b, Date: "2026-01-02T03:05:05Z",
			ForwardFrom: &fwd, ReplyToID: &rid},
	}
	out := formatMessages(msgs)
	for _, want := range []string{"===== Alpha =====", "===== Beta =====",
		"[2026-01-02 03:04:05] ann: hello", "[转发自 user:5]", "[回复 #9]"} {
		if !strings.Contains(out, want) {
			t.Fatalf("formatted output missing %q:\n%s", want, out)
		}
	}
}

func TestJobLifecycle(t *testing.T) {
	f := newFakeLLM(t)
	st := newTestStore(t)
	s := New(st, f.client(), "test-model", "")
	for _, m := range fabricate(10) {
		if err := st.InsertMessage(m); err != nil {
			t.Fatal(err)
		}
	}

	r := NewJobRunner(st, s)
	id, err := r.Start(nil, 24, ModeQuick)
	if err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(10 * time.Second)
	for {
		j, err := st.GetSummaryJob(id)
		if err != nil {
			t.Fatal(err)
		}
		if j.Status == store.JobDone {
			if j.Progress != 100 || j.Result == "" {
				t.Fatalf("done job = %+v", j)
			}
			return
		}
		if j.Status == store.JobError {
			t.Fatalf("job failed: %s", j.ErrorMsg)
		}
		if time.Now().After(deadline) {
			t.Fatalf("job stuck: %+v", j)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestJobErrorState(t *testing.T) {
	f := newFakeLLM(t)
	f.failChunks = true
	st := newTestStore(t)
	s := New(st, f.client(), "test-model", "")
	for _, m := range fabricate(10) {
		if err := st.InsertMessage(m); err != nil {
			t.Fatal(err)
		}
	}

	r := NewJobRunner(st, s)
	id, err := r.Start(nil, 24, ModeQuick)
	if err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(10 * time.Second)
	for {
		j, _ := st.GetSummaryJob(id)
		if j.Status == store.JobError {
			if !strings.HasPrefix(j.ErrorMsg, failPrefix) {
				t.Fatalf("error msg = %q", j.ErrorMsg)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("job never errored: %+v", j)
		}
		time.Sleep(20 * time.Millisecond)
	}
}
