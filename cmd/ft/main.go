package main

import (
	"context"
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

	"fundtrail/internal/app"
	"fundtrail/internal/config"
	"fundtrail/internal/db"
	"fundtrail/internal/deadline"
	"fundtrail/internal/domain"
	"fundtrail/internal/engine"
	"fundtrail/internal/export"
	"fundtrail/internal/repo"
	"fundtrail/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "ft",
	Short: "Fundtrail CLI",
	Long: `Fundtrail tracks public fund requests from submission to spend-down.
Staff associates submit funding requests; committee admins cast advisory
votes; the chief admin finalizes. Approved requests become projects with a
granted fund, expense posts are checked against the remaining balance and
the project deadline, and every fund action lands in an append-only ledger.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("FUNDTRAIL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "", "acting actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(requestCmd())
	rootCmd.AddCommand(voteCmd())
	rootCmd.AddCommand(decideCmd())
	rootCmd.AddCommand(finalizeCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(updateCmd())
	rootCmd.AddCommand(commentCmd())
	rootCmd.AddCommand(ledgerCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
}

// --- users ---

func userCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "user", Short: "Manage actors"}
	cmd.AddCommand(userCreateCmd())
	cmd.AddCommand(userListCmd())
	cmd.AddCommand(userShowCmd())
	cmd.AddCommand(userUpdateCmd())
	cmd.AddCommand(userDeactivateCmd())
	return cmd
}

func userCreateCmd() *cobra.Command {
	var username, name, role, password string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.CreateActor(ctx, engine.CreateActorOptions{
					Username: username,
					Name:     name,
					Role:     domain.Role(role),
					Password: password,
					ActorID:  viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "login name")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&role, "role", "", "staff-associate, committee-admin or chief-admin")
	cmd.Flags().StringVar(&password, "password", "", "password (min 8 chars)")
	cmd.MarkFlagRequired("username")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("role")
	cmd.MarkFlagRequired("password")
	return cmd
}

func userListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List actors",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListActors(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Username", "Name", "Role", "Active"})
				for _, a := range items {
					tw.AppendRow(table.Row{a.ID, a.Username, a.Name, a.Role, a.Active})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func userShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show an actor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				a, err := r.GetActor(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	return cmd
}

func userUpdateCmd() *cobra.Command {
	var name, role, password string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update an actor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts := engine.UpdateActorOptions{ActorID: viper.GetString("actor-id")}
				if cmd.Flags().Changed("name") {
					opts.Name = &name
				}
				if cmd.Flags().Changed("role") {
					r := domain.Role(role)
					opts.Role = &r
				}
				if cmd.Flags().Changed("password") {
					opts.Password = &password
				}
				a, err := e.UpdateActor(ctx, args[0], opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&role, "role", "", "new role")
	cmd.Flags().StringVar(&password, "password", "", "new password")
	return cmd
}

func userDeactivateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deactivate <id>",
		Short: "Deactivate an actor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.DeactivateActor(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	return cmd
}

// --- requests ---

func requestCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "request", Short: "Manage funding requests"}
	cmd.AddCommand(requestSubmitCmd())
	cmd.AddCommand(requestListCmd())
	cmd.AddCommand(requestShowCmd())
	return cmd
}

func requestSubmitCmd() *cobra.Command {
	var title, reason, amount, site, partners, startDate, endDate string
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a funding request",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				fr, err := e.SubmitRequest(ctx, engine.SubmitRequestOptions{
					Title:     title,
					Reason:    reason,
					Amount:    amount,
					Site:      site,
					Partners:  partners,
					StartDate: startDate,
					EndDate:   endDate,
					ActorID:   viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(fr)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "request title")
	cmd.Flags().StringVar(&reason, "reason", "", "why the fund is needed")
	cmd.Flags().StringVar(&amount, "amount", "", "requested amount")
	cmd.Flags().StringVar(&site, "site", "", "project site")
	cmd.Flags().StringVar(&partners, "partners", "", "partner organizations")
	cmd.Flags().StringVar(&startDate, "start", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&endDate, "end", "", "end date (YYYY-MM-DD)")
	cmd.MarkFlagRequired("title")
	cmd.MarkFlagRequired("reason")
	cmd.MarkFlagRequired("amount")
	cmd.MarkFlagRequired("site")
	cmd.MarkFlagRequired("start")
	cmd.MarkFlagRequired("end")
	return cmd
}

func requestListCmd() *cobra.Command {
	var status, submittedBy string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List funding requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListRequests(ctx, repo.RequestFilters{
					Status:      domain.RequestStatus(status),
					SubmittedBy: submittedBy,
					Limit:       limit,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Amount", "Site", "Status", "End"})
				for _, fr := range items {
					tw.AppendRow(table.Row{fr.ID, fr.Title, fr.Amount.String(), fr.Site, fr.Status, fr.EndDate})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().StringVar(&submittedBy, "submitted-by", "", "filter by submitter")
	cmd.Flags().IntVar(&limit, "limit", 0, "max rows")
	return cmd
}

func requestShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a request with its vote tally",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				fr, err := r.GetRequest(ctx, args[0])
				if err != nil {
					return err
				}
				tally, err := r.TallyVotes(ctx, fr.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{
					"request": fr,
					"tally":   tally,
				})
			})
		},
	}
	return cmd
}

// --- votes ---

func voteCmd() *cobra.Command {
	var choice, remarks string
	cmd := &cobra.Command{
		Use:   "vote <request-id>",
		Short: "Cast an advisory vote",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, ok := domain.ParseVoteChoice(choice)
			if !ok {
				return fmt.Errorf("unknown vote choice %q", choice)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				v, err := e.CastVote(ctx, engine.CastVoteOptions{
					RequestID: args[0],
					Choice:    parsed,
					Remarks:   remarks,
					ActorID:   viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(v)
			})
		},
	}
	cmd.Flags().StringVar(&choice, "choice", "", "approve or reject")
	cmd.Flags().StringVar(&remarks, "remarks", "", "optional remarks")
	cmd.MarkFlagRequired("choice")
	return cmd
}

func decideCmd() *cobra.Command {
	var approve, reject bool
	var remarks string
	cmd := &cobra.Command{
		Use:   "decide <request-id>",
		Short: "Decide a request directly",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if approve == reject {
				return errors.New("pass exactly one of --approve or --reject")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				fr, err := e.Decide(ctx, engine.DecisionOptions{
					RequestID: args[0],
					Approve:   approve,
					Remarks:   remarks,
					ActorID:   viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(fr)
			})
		},
	}
	cmd.Flags().BoolVar(&approve, "approve", false, "approve the request")
	cmd.Flags().BoolVar(&reject, "reject", false, "reject the request")
	cmd.Flags().StringVar(&remarks, "remarks", "", "optional remarks")
	return cmd
}

func finalizeCmd() *cobra.Command {
	var approve, reject bool
	var remarks string
	cmd := &cobra.Command{
		Use:   "finalize <request-id>",
		Short: "Finalize a request after committee voting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if approve == reject {
				return errors.New("pass exactly one of --approve or --reject")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				fr, err := e.Finalize(ctx, engine.DecisionOptions{
					RequestID: args[0],
					Approve:   approve,
					Remarks:   remarks,
					ActorID:   viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(fr)
			})
		},
	}
	cmd.Flags().BoolVar(&approve, "approve", false, "approve the request")
	cmd.Flags().BoolVar(&reject, "reject", false, "reject the request")
	cmd.Flags().StringVar(&remarks, "remarks", "", "optional remarks")
	return cmd
}

// --- projects ---

func projectCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "project", Short: "Manage approved projects"}
	cmd.AddCommand(projectListCmd())
	cmd.AddCommand(projectShowCmd())
	cmd.AddCommand(projectStatusCmd())
	cmd.AddCommand(projectExportCmd())
	return cmd
}

func projectListCmd() *cobra.Command {
	var byFund, urgentOnly bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				sort := repo.ProjectSortRecent
				if byFund {
					sort = repo.ProjectSortFund
				}
				items, err := e.Repo.ListProjects(ctx, sort)
				if err != nil {
					return err
				}
				window := 7
				if e.Config != nil && e.Config.Workflow.UrgentWindowDays > 0 {
					window = e.Config.Workflow.UrgentWindowDays
				}
				now := time.Now()
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Fund", "Status", "End", "Days left"})
				for _, pr := range items {
					days, err := deadline.DaysRemaining(pr.Request.EndDate, now)
					if err != nil {
						return err
					}
					urgent, _ := deadline.IsUrgent(pr.Project.Status, pr.Request.EndDate, now, window)
					if urgentOnly && !urgent {
						continue
					}
					tw.AppendRow(table.Row{
						pr.Project.ID, pr.Request.Title, pr.Project.GivenFund.String(),
						pr.Project.Status, pr.Request.EndDate, days,
					})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&byFund, "by-fund", false, "sort by granted fund, largest first")
	cmd.Flags().BoolVar(&urgentOnly, "urgent", false, "only ongoing projects near their deadline")
	return cmd
}

func projectShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a project with its remaining budget",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.Repo.GetProject(ctx, args[0])
				if err != nil {
					return err
				}
				fr, err := e.Repo.GetRequest(ctx, p.RequestID)
				if err != nil {
					return err
				}
				remaining, err := e.RemainingBalance(ctx, p.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{
					"project":   p,
					"request":   fr,
					"remaining": remaining.String(),
				})
			})
		},
	}
	return cmd
}

func projectStatusCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "status <id>",
		Short: "Close or cancel a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.SetProjectStatus(ctx, args[0], domain.ProjectStatus(status), viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&status, "set", "", "Completed or Cancelled")
	cmd.MarkFlagRequired("set")
	return cmd
}

func projectExportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export projects as CSV, largest fund first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListProjects(ctx, repo.ProjectSortFund)
				if err != nil {
					return err
				}
				w := os.Stdout
				if out != "" {
					f, err := os.Create(out)
					if err != nil {
						return err
					}
					defer f.Close()
					w = f
				}
				return export.ProjectsCSV(w, items)
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	return cmd
}

// --- updates ---

func updateCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "update", Short: "Post and list project updates"}
	cmd.AddCommand(updatePostCmd())
	cmd.AddCommand(updateListCmd())
	return cmd
}

func updatePostCmd() *cobra.Command {
	var kind, title, desc, amount, receipt, site string
	cmd := &cobra.Command{
		Use:   "post <project-id>",
		Short: "Post an expense or progress update",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts := engine.PostUpdateOptions{
					ProjectID:   args[0],
					Title:       title,
					Description: desc,
					Amount:      amount,
					ReceiptPath: receipt,
					SitePath:    site,
					ActorID:     viper.GetString("actor-id"),
				}
				var u domain.ProjectUpdate
				var err error
				switch kind {
				case string(domain.UpdateExpense):
					u, err = e.PostExpense(ctx, opts)
				case string(domain.UpdateProgress):
					u, err = e.PostProgress(ctx, opts)
				default:
					return errors.New("--kind must be expense or progress")
				}
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "progress", "expense or progress")
	cmd.Flags().StringVar(&title, "title", "", "update title")
	cmd.Flags().StringVar(&desc, "description", "", "update details")
	cmd.Flags().StringVar(&amount, "amount", "", "expense amount")
	cmd.Flags().StringVar(&receipt, "receipt", "", "receipt file path")
	cmd.Flags().StringVar(&site, "picture", "", "site picture path")
	cmd.MarkFlagRequired("title")
	return cmd
}

func updateListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <project-id>",
		Short: "List updates on a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListUpdates(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

// --- comments ---

func commentCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "comment", Short: "Comment on projects"}
	cmd.AddCommand(commentAddCmd())
	cmd.AddCommand(commentListCmd())
	return cmd
}

func commentAddCmd() *cobra.Command {
	var content string
	var anonymous bool
	cmd := &cobra.Command{
		Use:   "add <project-id>",
		Short: "Add a comment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.AddComment(ctx, engine.AddCommentOptions{
					ProjectID: args[0],
					Content:   content,
					Anonymous: anonymous,
					ActorID:   viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&content, "content", "", "comment text")
	cmd.Flags().BoolVar(&anonymous, "anonymous", false, "hide the author")
	cmd.MarkFlagRequired("content")
	return cmd
}

func commentListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <project-id>",
		Short: "List comments on a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListComments(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

// --- ledger ---

func ledgerCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "ledger", Short: "Inspect the audit ledger"}
	cmd.AddCommand(ledgerTailCmd())
	return cmd
}

func ledgerTailCmd() *cobra.Command {
	var n int
	var actionNames []string
	var actorID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail ledger entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				var actions []domain.ActionKind
				for _, name := range actionNames {
					kind := domain.ActionKind(name)
					if !kind.Valid() {
						return fmt.Errorf("unknown action kind %q", name)
					}
					actions = append(actions, kind)
				}
				items, err := r.ListLedger(ctx, repo.LedgerFilters{
					Actions: actions,
					ActorID: actorID,
					Limit:   n,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "TS", "Actor", "Action", "Target"})
				for _, entry := range items {
					tw.AppendRow(table.Row{entry.ID, entry.TS, entry.ActorID, entry.Action, entry.Target})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of entries")
	cmd.Flags().StringSliceVar(&actionNames, "action", nil, "filter by action kinds, repeatable")
	cmd.Flags().StringVar(&actorID, "actor", "", "filter by actor")
	return cmd
}

// --- api keys ---

func apikeyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	cmd.AddCommand(apikeyCreateCmd())
	cmd.AddCommand(apikeyListCmd())
	cmd.AddCommand(apikeyRevokeCmd())
	return cmd
}

func apikeyCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key for the acting actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				actorID := viper.GetString("actor-id")
				if actorID == "" {
					return errors.New("--actor-id is required")
				}
				if _, err := r.GetActor(ctx, actorID); err != nil {
					return err
				}
				raw := uuid.NewString() + uuid.NewString()
				k := domain.APIKey{
					ID:        uuid.NewString(),
					ActorID:   actorID,
					Name:      name,
					KeyHash:   repo.HashAPIKey(raw),
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				if err := r.InsertAPIKey(ctx, k); err != nil {
					return err
				}
				// The raw key is shown once and never stored.
				return printJSONOrTable(map[string]string{
					"id":   k.ID,
					"name": k.Name,
					"key":  raw,
				})
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys for the acting actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListAPIKeys(ctx, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func apikeyRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	return cmd
}

// --- config ---

func configCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Manage workspace config"}
	cmd.AddCommand(configInitCmd())
	cmd.AddCommand(configShowCmd())
	return cmd
}

func configInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("config already exists at %s", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	return cmd
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
	return cmd
}

// --- serve ---

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.Open(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			defer a.Close()
			authCfg := server.AuthConfig{JWTSecret: os.Getenv("FUNDTRAIL_JWT_SECRET")}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("FUNDTRAIL_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: a.Engine, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Fundtrail API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	a, err := app.Open(viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a.Engine)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	a, err := app.Open(viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a.Engine.Repo)
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
