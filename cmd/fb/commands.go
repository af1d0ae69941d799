package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"foodbridge/internal/app"
	"foodbridge/internal/config"
	"foodbridge/internal/db"
	"foodbridge/internal/domain"
	"foodbridge/internal/engine"
	"foodbridge/internal/intake"
	"foodbridge/internal/migrate"
	"foodbridge/internal/repo"
)

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Manage foodbridge.yml",
		Long:  "foodbridge.yml holds the AI provider, prompts, routing thresholds, NGO catalog, reward tiers and role permissions. Missing keys fall back to the built-in defaults.",
	}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default foodbridge.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrDefault(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrIndented(cfg)
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate foodbridge.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := config.Load(viper.GetString("workspace"))
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	m := &cobra.Command{Use: "migrate", Short: "Database schema"}
	m.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := db.Open(db.Config{Workspace: viper.GetString("workspace")})
			if err != nil {
				return err
			}
			defer conn.Close()
			st, err := migrate.Inspect(cmd.Context(), conn)
			if err != nil {
				return err
			}
			return printJSONOrIndented(st)
		},
	})
	m.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := db.Open(db.Config{Workspace: viper.GetString("workspace")})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			fmt.Println("schema up to date")
			return nil
		},
	})
	return m
}

func ngoCmd() *cobra.Command {
	n := &cobra.Command{Use: "ngo", Short: "NGO request catalog"}
	n.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List NGO requests open for matching",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrDefault(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			rows := make([]table.Row, 0, len(cfg.NGOs))
			for _, ngo := range cfg.NGOs {
				rows = append(rows, table.Row{ngo.ID, ngo.OrganizationName, ngo.RequiredDiet, ngo.RequiredQuantity, fmt.Sprintf("%.1f km", ngo.DistanceKm), ngo.ContactPerson})
			}
			return printTable(cfg.NGOs, table.Row{"ID", "Organization", "Diet", "Qty", "Distance", "Contact"}, rows)
		},
	})
	return n
}

func classifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <image>",
		Short: "Compress a photo and ask the AI whether it is safe to donate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			contentType := http.DetectContentType(data)
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				res, ok := intake.Compress(data, contentType, intake.Options{
					MaxDimension: rt.Config.Intake.MaxDimension,
					Quality:      rt.Config.Intake.JPEGQuality,
				})
				if !ok {
					return fmt.Errorf("%s is not an image (%s)", args[0], contentType)
				}
				d, err := rt.Engine.Classifier.Classify(ctx, res.Data, res.MIMEType)
				if err != nil {
					return err
				}
				return printJSONOrIndented(d)
			})
		},
	}
}

func scoreCmd() *cobra.Command {
	var donationFile, ngoID string
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score a classified donation against an NGO request",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(donationFile)
			if err != nil {
				return err
			}
			var d domain.Donation
			if err := json.Unmarshal(raw, &d); err != nil {
				return fmt.Errorf("parse %s: %w", donationFile, err)
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				ngo, ok := rt.Config.NGO(ngoID)
				if !ok {
					return fmt.Errorf("unknown ngo %q", ngoID)
				}
				res, err := rt.Engine.Scorer.Score(ctx, d, ngo)
				if err != nil {
					return err
				}
				return printJSONOrIndented(res)
			})
		},
	}
	cmd.Flags().StringVar(&donationFile, "donation", "", "donation JSON as printed by fb classify")
	cmd.Flags().StringVar(&ngoID, "ngo", "", "NGO request id")
	_ = cmd.MarkFlagRequired("donation")
	_ = cmd.MarkFlagRequired("ngo")
	return cmd
}

func profileCmd() *cobra.Command {
	p := &cobra.Command{Use: "profile", Short: "Manage user profiles and rewards"}
	p.AddCommand(profileSaveCmd())
	p.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Show a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				prof, err := rt.Engine.GetProfile(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrIndented(prof)
			})
		},
	})
	p.AddCommand(profileListCmd())
	p.AddCommand(&cobra.Command{
		Use:   "rewards <id>",
		Short: "Points and progress to the next badge",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				prog, err := rt.Engine.RewardsProgress(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrIndented(prog)
			})
		},
	})
	p.AddCommand(profileAwardCmd())
	p.AddCommand(&cobra.Command{
		Use:   "donations <id>",
		Short: "Donation history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				items, err := rt.Engine.ListDonations(ctx, args[0], 50)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(items))
				for _, it := range items {
					rows = append(rows, table.Row{it.CreatedAt, it.FoodName, it.Status, it.NgoName, it.Reason})
				}
				return printTable(items, table.Row{"When", "Food", "Status", "NGO", "Reason"}, rows)
			})
		},
	})
	return p
}

func profileListCmd() *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				items, err := rt.Engine.Repo.ListProfiles(ctx, domain.Role(strings.ToUpper(role)))
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(items))
				for _, it := range items {
					rows = append(rows, table.Row{it.ID, it.Name, it.Role, it.RewardPoints, strings.Join(it.Badges, ",")})
				}
				return printTable(items, table.Row{"ID", "Name", "Role", "Points", "Badges"}, rows)
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "role filter")
	return cmd
}

func profileSaveCmd() *cobra.Command {
	var in engine.ProfileInput
	var score int
	cmd := &cobra.Command{
		Use:   "save",
		Short: "Create or update a profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("safety-score") {
				in.SafetyScore = &score
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				p, err := rt.Engine.SaveProfile(ctx, viper.GetString("actor-id"), in)
				if err != nil {
					return err
				}
				return printJSONOrIndented(p)
			})
		},
	}
	cmd.Flags().StringVar(&in.ID, "id", "", "profile id")
	cmd.Flags().StringVar(&in.Name, "name", "", "display name")
	cmd.Flags().StringVar(&in.Role, "role", "DONOR", "DONOR, NGO, ADMIN or VOLUNTEER")
	cmd.Flags().StringVar(&in.Organization, "organization", "", "organization")
	cmd.Flags().StringVar(&in.InternshipStartDate, "internship-start", "", "internship start date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&score, "safety-score", 0, "safety score 0..100")
	cmd.Flags().StringVar(&in.Phone, "phone", "", "phone number")
	cmd.Flags().StringVar(&in.Language, "language", "en", "en, hi, es or te")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func profileAwardCmd() *cobra.Command {
	var points int
	cmd := &cobra.Command{
		Use:   "award <id>",
		Short: "Grant reward points",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				p, err := rt.Engine.AwardPoints(ctx, args[0], viper.GetString("actor-id"), points)
				if err != nil {
					return err
				}
				return printJSONOrIndented(p)
			})
		},
	}
	cmd.Flags().IntVar(&points, "points", 50, "points to add")
	return cmd
}

func shiftCmd() *cobra.Command {
	s := &cobra.Command{
		Use:   "shift",
		Short: "Volunteer shifts, wallet and certificate",
		Long:  "Shifts are recorded against --actor-id. Checking out credits the hourly rate for the time worked.",
	}
	var shift string
	in := &cobra.Command{
		Use:   "in",
		Short: "Check in",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				rec, err := rt.Engine.CheckIn(ctx, viper.GetString("actor-id"), shift)
				if err != nil {
					return err
				}
				return printJSONOrIndented(rec)
			})
		},
	}
	in.Flags().StringVar(&shift, "shift", "MORNING", "MORNING, EVENING or NIGHT")
	s.AddCommand(in)
	s.AddCommand(&cobra.Command{
		Use:   "out",
		Short: "Check out",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				rec, err := rt.Engine.CheckOut(ctx, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrIndented(rec)
			})
		},
	})
	s.AddCommand(&cobra.Command{
		Use:   "history",
		Short: "Shift history",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				items, err := rt.Engine.AttendanceHistory(ctx, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(items))
				for _, a := range items {
					hours, earned := "", ""
					if a.HoursWorked != nil {
						hours = fmt.Sprintf("%.2f", *a.HoursWorked)
					}
					if a.Earnings != nil {
						earned = fmt.Sprint(*a.Earnings)
					}
					rows = append(rows, table.Row{a.Date, a.Shift, a.Status, hours, earned})
				}
				return printTable(items, table.Row{"Date", "Shift", "Status", "Hours", "Earned"}, rows)
			})
		},
	})
	s.AddCommand(&cobra.Command{
		Use:   "wallet",
		Short: "Total earnings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				w, err := rt.Engine.Wallet(ctx, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(w)
				}
				fmt.Printf("%d %s earned (%d %s/hour)\n", w.Total, w.Currency, w.HourlyRate, w.Currency)
				return nil
			})
		},
	})
	s.AddCommand(&cobra.Command{
		Use:   "certificate",
		Short: "Internship certificate eligibility",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				c, err := rt.Engine.Certificate(ctx, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrIndented(c)
			})
		},
	})
	return s
}

func adminCmd() *cobra.Command {
	a := &cobra.Command{Use: "admin", Short: "Platform overview"}
	a.AddCommand(&cobra.Command{
		Use:   "overview",
		Short: "Users and donations by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				o, err := rt.Engine.AdminOverview(ctx)
				if err != nil {
					return err
				}
				return printJSONOrIndented(o)
			})
		},
	})
	var limit int
	violations := &cobra.Command{
		Use:   "violations",
		Short: "Recorded safety violations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				items, err := rt.Engine.Violations(ctx, limit)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(items))
				for _, v := range items {
					rows = append(rows, table.Row{v.Date, v.UserName, v.ViolationType, v.Severity})
				}
				return printTable(items, table.Row{"Date", "User", "Violation", "Severity"}, rows)
			})
		},
	}
	violations.Flags().IntVar(&limit, "limit", 50, "max rows")
	a.AddCommand(violations)
	return a
}

func keyCmd() *cobra.Command {
	k := &cobra.Command{
		Use:   "key",
		Short: "API keys for the HTTP server",
		Long:  "Keys are shown once at creation; only their SHA-256 digest is stored.",
	}
	var name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Mint a key for --actor-id",
		RunE: func(cmd *cobra.Command, args []string) error {
			buf := make([]byte, 24)
			if _, err := rand.Read(buf); err != nil {
				return err
			}
			secret := "fbk_" + hex.EncodeToString(buf)
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				key := domain.APIKey{
					ID:        uuid.NewString(),
					ActorID:   viper.GetString("actor-id"),
					Name:      name,
					KeyHash:   repo.HashAPIKey(secret),
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				if err := r.InsertAPIKey(ctx, key); err != nil {
					return err
				}
				return printJSONOrIndented(map[string]string{"id": key.ID, "actor_id": key.ActorID, "key": secret})
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "label")
	k.AddCommand(create)
	k.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				keys, err := r.ListAPIKeys(ctx, "")
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(keys))
				for _, key := range keys {
					lastUsed := "never"
					if key.LastUsedAt != nil {
						lastUsed = *key.LastUsedAt
					}
					rows = append(rows, table.Row{key.ID, key.ActorID, key.Name, key.CreatedAt, lastUsed})
				}
				return printTable(keys, table.Row{"ID", "Actor", "Name", "Created", "Last used"}, rows)
			})
		},
	})
	k.AddCommand(&cobra.Command{
		Use:   "revoke <id>",
		Short: "Delete a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if err := r.DeleteAPIKey(ctx, args[0]); err != nil {
					if errors.Is(err, repo.ErrNotFound) {
						return fmt.Errorf("no key %s", args[0])
					}
					return err
				}
				fmt.Println("revoked", args[0])
				return nil
			})
		},
	})
	return k
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "Everything the pipeline did: classifications, routing, deliveries, verdicts, rewards and shifts.",
	}
	var n int
	var f repo.EventFilter
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				events, err := r.LatestEvents(ctx, n, f)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(events))
				for _, e := range events {
					rows = append(rows, table.Row{e.ID, e.TS, e.Type, e.EntityKind + ":" + e.EntityID, e.ActorID})
				}
				return printTable(events, table.Row{"ID", "TS", "Type", "Entity", "Actor"}, rows)
			})
		},
	}
	tail.Flags().IntVar(&n, "n", 20, "number of events")
	tail.Flags().StringVar(&f.Type, "type", "", "event type filter")
	tail.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind")
	tail.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id")
	tail.Flags().StringVar(&f.ActorID, "actor", "", "actor filter")
	log.AddCommand(tail)
	return log
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	conn, err := db.Open(db.Config{Workspace: viper.GetString("workspace")})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}
