package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"gitlab.com/zephyrtronium/pick"
	"golang.org/x/time/rate"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/wardenbot/warden/community"
	"github.com/wardenbot/warden/modlog"
)

// Load loads Warden from a TOML configuration.
func Load(ctx context.Context, r io.Reader) (*Config, *toml.MetaData, error) {
	var cfg Config
	md, err := toml.NewDecoder(r).Decode(&cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("couldn't decode config: %w", err)
	}
	expandcfg(&cfg, os.Getenv)
	return &cfg, &md, nil
}

// Config is the marshaled structure of Warden's configuration.
type Config struct {
	// Owner is the table of metadata about the bot owner.
	Owner Owner `toml:"owner"`
	// DB is the table of storage paths and connection strings.
	DB DBCfg `toml:"db"`
	// HTTP is the HTTP server configuration.
	HTTP HTTPCfg `toml:"http"`
	// Discord is the configuration for connecting to Discord.
	Discord ClientCfg `toml:"discord"`
	// Global is the table of settings applied to every community.
	Global Global `toml:"global"`
	// Community is the set of community configurations, keyed by a
	// human-readable label.
	Community map[string]*CommunityCfg `toml:"community"`
}

// Owner is metadata about the bot owner.
type Owner struct {
	// ID is the owner's user ID. The owner bypasses every permission
	// check everywhere.
	ID string `toml:"id"`
	// Name is the name of the owner. It does not need to be a username.
	Name string `toml:"name"`
	// Contact describes owner contact information.
	Contact string `toml:"contact"`
}

// ClientCfg is the configuration for connecting to the chat platform.
type ClientCfg struct {
	// TokenFile is the path to a file containing the bot token.
	TokenFile string `toml:"token"`
	// Rate is the global rate limit for sending messages.
	Rate Rate `toml:"rate"`
}

// HTTPCfg is the configuration for the bot's HTTP server.
type HTTPCfg struct {
	// Listen is the address on which to serve metrics, profiling, and
	// the case API. Empty disables the server.
	Listen string `toml:"listen"`
}

// Global is the configuration for globally applied options.
type Global struct {
	// Prefix is the default command prefix.
	Prefix string `toml:"prefix"`
	// Emotes is the flavor emotes and their weights to use everywhere.
	Emotes map[string]int `toml:"emotes"`
	// Rate is the default per-community reply rate limit.
	Rate Rate `toml:"rate"`
}

// CommunityCfg is the configuration for one community.
type CommunityCfg struct {
	// ID is the community's platform ID.
	ID string `toml:"id"`
	// Name is the community's display name.
	Name string `toml:"name"`
	// Owner is the community owner's user ID.
	Owner string `toml:"owner"`
	// Prefix overrides the global command prefix.
	Prefix string `toml:"prefix"`
	// AdminRole and ModRole name the roles granting admin and moderator
	// command access.
	AdminRole string `toml:"admin_role"`
	ModRole   string `toml:"mod_role"`
	// ModLog is the channel receiving case notifications.
	ModLog string `toml:"modlog"`
	// Hierarchy enables role-rank checks on moderation commands.
	Hierarchy bool `toml:"hierarchy"`
	// DeleteRepeats enables deletion of repeated messages.
	DeleteRepeats bool `toml:"delete_repeats"`
	// BanMentionSpam is the mention-count autoban threshold; 0 off.
	BanMentionSpam int `toml:"ban_mention_spam"`
	// DeleteDelay is the command-deletion delay in seconds; nil or -1
	// leaves invocations alone.
	DeleteDelay *int `toml:"delete_delay"`
	// Cases overrides per-action case creation, keyed by action name.
	Cases map[string]bool `toml:"cases"`
	// Emotes is the flavor emotes and their weights for the community.
	Emotes map[string]int `toml:"emotes"`
	// Rate overrides the global reply rate limit.
	Rate *Rate `toml:"rate"`
}

// DBCfg is the configuration of storage.
type DBCfg struct {
	// Ledger is the path of the flat-file case ledger. Exactly one of
	// Ledger and KVLedger must be set.
	Ledger string `toml:"ledger"`
	// KVLedger is the directory of the key-value case ledger.
	KVLedger string `toml:"kvledger"`
	// KVFlag is a badger superflag applied to the key-value ledger.
	KVFlag string `toml:"kvflag"`
	// Settings is the path of the runtime settings overrides file.
	Settings string `toml:"settings"`
	// Filter is the connection string of the word filter database.
	Filter string `toml:"filter"`
	// Names is the connection string of the name history database.
	// It may equal Filter to share one database.
	Names string `toml:"names"`
}

// Rate is a rate limit configuration.
type Rate struct {
	Every float64 `toml:"every"`
	Num   int     `toml:"num"`
}

// communities builds the live community map from configuration,
// before any persisted overrides apply.
func (cfg *Config) communities() (map[string]*community.Community, error) {
	r := make(map[string]*community.Community, len(cfg.Community))
	for nm, c := range cfg.Community {
		if c.ID == "" {
			return nil, fmt.Errorf("community %s has no id", nm)
		}
		s := community.DefaultSettings()
		s.ModLog = c.ModLog
		s.RespectHierarchy = c.Hierarchy
		s.DeleteRepeats = c.DeleteRepeats
		s.BanMentionSpam = c.BanMentionSpam
		if c.DeleteDelay != nil {
			s.DeleteDelay = *c.DeleteDelay
		}
		for an, on := range c.Cases {
			a, ok := modlog.ParseAction(an)
			if !ok {
				return nil, fmt.Errorf("community %s: unknown action %q", nm, an)
			}
			s.Cases[a] = on
		}
		prefix := c.Prefix
		if prefix == "" {
			prefix = cfg.Global.Prefix
		}
		if prefix == "" {
			prefix = "!"
		}
		rt := cfg.Global.Rate
		if c.Rate != nil {
			rt = *c.Rate
		}
		if rt.Num == 0 {
			rt = Rate{Every: 1, Num: 2}
		}
		name := c.Name
		if name == "" {
			name = nm
		}
		r[c.ID] = community.New(community.Config{
			ID:        c.ID,
			Name:      name,
			Owner:     c.Owner,
			AdminRole: c.AdminRole,
			ModRole:   c.ModRole,
			Prefix:    prefix,
			Emotes:    pick.New(pick.FromMap(mergemaps(cfg.Global.Emotes, c.Emotes))),
			Rate:      rate.NewLimiter(rate.Every(fseconds(rt.Every)), rt.Num),
			Settings:  s,
		})
	}
	return r, nil
}

func loadDBs(ctx context.Context, cfg DBCfg) (store modlog.Store, filter, names *sqlitex.Pool, err error) {
	if cfg.Ledger != "" && cfg.KVLedger != "" {
		return nil, nil, nil, fmt.Errorf("multiple ledger backends requested; use exactly one")
	}
	switch {
	case cfg.KVLedger != "":
		slog.DebugContext(ctx, "using kv ledger", slog.String("path", cfg.KVLedger), slog.String("flags", cfg.KVFlag))
		opts := badger.DefaultOptions(cfg.KVLedger)
		opts = opts.WithLogger(nil)
		opts = opts.WithCompression(options.None)
		opts = opts.WithBloomFalsePositive(0)
		kv, err := badger.Open(opts.FromSuperFlag(cfg.KVFlag))
		if err != nil {
			return nil, nil, nil, fmt.Errorf("couldn't open kv ledger: %w", err)
		}
		store = modlog.OpenKV(kv)
	case cfg.Ledger != "":
		slog.DebugContext(ctx, "using file ledger", slog.String("path", cfg.Ledger))
		store, err = modlog.OpenFile(cfg.Ledger)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("couldn't open file ledger: %w", err)
		}
	default:
		return nil, nil, nil, fmt.Errorf("no ledger backend requested; use exactly one")
	}

	slog.DebugContext(ctx, "filter db", slog.String("path", cfg.Filter))
	filter, err = sqlitex.NewPool(cfg.Filter, sqlitex.PoolOptions{})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("couldn't open filter db: %w", err)
	}

	switch cfg.Names {
	case cfg.Filter:
		slog.DebugContext(ctx, "name history db shared with filter db")
		names = filter
	default:
		slog.DebugContext(ctx, "name history db", slog.String("path", cfg.Names))
		names, err = sqlitex.NewPool(cfg.Names, sqlitex.PoolOptions{})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("couldn't open name history db: %w", err)
		}
	}

	return store, filter, names, nil
}

func mergemaps(ms ...map[string]int) map[string]int {
	u := make(map[string]int)
	for _, m := range ms {
		for k, v := range m {
			u[k] += v
		}
	}
	return u
}

func fseconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func expandcfg(cfg *Config, expand func(s string) string) {
	fields := []*string{
		&cfg.Owner.ID,
		&cfg.Owner.Name,
		&cfg.Owner.Contact,
		&cfg.DB.Ledger,
		&cfg.DB.KVLedger,
		&cfg.DB.KVFlag,
		&cfg.DB.Settings,
		&cfg.DB.Filter,
		&cfg.DB.Names,
		&cfg.HTTP.Listen,
		&cfg.Discord.TokenFile,
	}
	for _, f := range fields {
		*f = os.Expand(*f, expand)
	}
	for _, v := range cfg.Community {
		v.ID = os.Expand(v.ID, expand)
		v.Owner = os.Expand(v.Owner, expand)
		v.ModLog = os.Expand(v.ModLog, expand)
	}
}
