package cmd

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/nextlevelbuilder/tgmon/internal/alert"
	"github.com/nextlevelbuilder/tgmon/internal/bot"
	"github.com/nextlevelbuilder/tgmon/internal/config"
	"github.com/nextlevelbuilder/tgmon/internal/platform"
	"github.com/nextlevelbuilder/tgmon/internal/platform/mtproto"
	"github.com/nextlevelbuilder/tgmon/internal/pool"
	"github.com/nextlevelbuilder/tgmon/internal/sched"
	"github.com/nextlevelbuilder/tgmon/internal/store"
	"github.com/nextlevelbuilder/tgmon/internal/summarize"
)

// runMonitor is the root command: start every active tenant session and run
// until interrupted.
func runMonitor() {
	setupLogging()
	cfg := loadConfig()
	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintln(os.Stderr, "config:", e)
		}
		os.Exit(1)
	}

	st := openStore(cfg)
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var notifier *alert.BotNotifier
	if cfg.Bot.Token != "" && cfg.Bot.OwnerID != 0 {
		notifier = alert.NewBotNotifier(cfg.Bot.Token, cfg.Bot.OwnerID)
	}

	var engineNotifier alert.Notifier
	if notifier != nil {
		engineNotifier = notifier
	}
	engine := alert.New(st, cfg.Alerts.Keywords, cfg.Alerts.Enabled, engineNotifier)

	llm := summarize.NewLLMClient(cfg.AI.APIURL, cfg.AI.Model, cfg.AI.MaxTokens,
		cfg.AI.EffectiveKeys(), cfg.AI.MaxConcurrentPerKey)
	if err := llm.Health(ctx); err != nil {
		slog.Warn("llm endpoint unreachable, summaries will fail until it recovers", "error", err)
	}
	sum := summarize.New(st, llm, cfg.AI.Model, cfg.AI.SummarySystemPrompt)
	jobs := summarize.NewJobRunner(st, sum)

	p := pool.New(st, sessionFactory(cfg), groupRefs(cfg), cfg.Monitoring.KeepDays, engine)

	ensureDefaultTenant(st, cfg)
	if err := p.StartAll(ctx); err != nil {
		slog.Error("session pool start failed", "error", err)
		os.Exit(1)
	}

	if cfg.Bot.Token != "" && cfg.Bot.OwnerID != 0 {
		b, err := bot.New(cfg.Bot.Token, cfg.Bot.OwnerID, st, p, jobs)
		if err != nil {
			slog.Error("control bot init failed", "error", err)
		} else {
			go func() {
				if err := b.Run(ctx); err != nil {
					slog.Error("control bot stopped", "error", err)
				}
			}()
		}
	}

	var pushNotifier sched.Notifier
	if notifier != nil {
		pushNotifier = notifier
	}
	pusher := sched.New(sched.Config{
		Enabled: cfg.ScheduledPush.Enabled,
		Cron:    cfg.ScheduledPush.Cron,
		Hours:   cfg.ScheduledPush.Hours,
	}, sum, pushNotifier)
	go pusher.Run(ctx)

	slog.Info("tgmon running", "version", Version, "groups", len(cfg.Groups))
	<-ctx.Done()

	slog.Info("shutting down")
	p.StopAll()
}

// sessionFactory builds an MTProto session per tenant. A tenant with its own
// app credentials uses them; otherwise the shared config pair applies.
func sessionFactory(cfg *config.Config) pool.SessionFactory {
	return func(t store.Tenant) platform.Session {
		apiID, apiHash := t.APIID, t.APIHash
		if apiID == 0 || apiHash == "" {
			apiID, apiHash = cfg.Telegram.APIID, cfg.Telegram.APIHash
		}
		return mtproto.New(mtproto.Options{
			APIID:       apiID,
			APIHash:     apiHash,
			Phone:       t.Phone,
			SessionPath: cfg.SessionPath(t.SessionName),
			CodePrompt:  promptLoginCode(t.Phone),
		})
	}
}

func groupRefs(cfg *config.Config) []platform.GroupRef {
	refs := make([]platform.GroupRef, 0, len(cfg.Groups))
	for _, g := range cfg.Groups {
		refs = append(refs, platform.GroupRef{ID: g.ID, Username: g.Username})
	}
	return refs
}

// ensureDefaultTenant registers the config phone as a tenant when the
// tenants table is empty, so single-account setups need no extra step.
func ensureDefaultTenant(st *store.Store, cfg *config.Config) {
	tenants, err := st.GetTenants(false)
	if err != nil {
		slog.Error("tenant list failed", "error", err)
		return
	}
	if len(tenants) > 0 || cfg.Telegram.Phone == "" {
		return
	}
	if _, err := st.AddTenant(cfg.Telegram.Phone, cfg.Telegram.SessionName, 0, ""); err != nil {
		slog.Error("default tenant registration failed", "error", err)
	}
}

func promptLoginCode(phone string) mtproto.CodePrompt {
	return func(ctx context.Context) (string, error) {
		fmt.Printf("Enter the login code sent to %s: ", phone)
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(line), nil
	}
}
