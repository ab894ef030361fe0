// Command agenda is the client side of the booking API: it keeps a session
// for one actor and prints its schedule and earnings.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"servicenest/internal/client"
	"servicenest/internal/config"
	"servicenest/internal/earnings"
	"servicenest/internal/logging"
	"servicenest/internal/models"
	"servicenest/internal/repository"
	"servicenest/internal/schedule"
	"servicenest/internal/session"
	"servicenest/internal/store"
	"servicenest/internal/worker"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type options struct {
	role    string
	id      string
	view    string
	day     string
	export  string
	asJSON  bool
	watch   bool
	actions string
}

func main() {
	var opts options
	flag.StringVar(&opts.role, "role", "worker", "actor role: worker or customer")
	flag.StringVar(&opts.id, "id", "", "worker id or customer e-mail")
	flag.StringVar(&opts.view, "view", "today", "today | upcoming | week | open | earnings")
	flag.StringVar(&opts.day, "date", "", "any day of the week to show (YYYY-MM-DD), default today")
	flag.StringVar(&opts.export, "export", "", "write the earnings report to this xlsx file")
	flag.BoolVar(&opts.asJSON, "json", false, "print JSON instead of a table")
	flag.BoolVar(&opts.watch, "watch", false, "keep refreshing in the background until interrupted")
	flag.StringVar(&opts.actions, "do", "", "comma-separated actions such as accept:12,start:12")
	flag.Parse()

	if err := run(opts); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run(opts options) error {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}
	logger := logging.Component(baseLogger, "agenda")

	if cfg.Catalog.Path != "" {
		if prices, err := config.LoadCatalog(cfg.Catalog.Path); err == nil {
			models.SetPriceCatalog(prices)
		} else {
			logger.Warn().Err(err).Msg("catalog not loaded, using built-in prices")
		}
	}

	actor := models.Actor{Role: models.Role(strings.ToLower(opts.role)), ID: opts.id}
	if err := actor.Validate(); err != nil {
		return err
	}

	if cfg.Client.BaseURL == "" {
		return fmt.Errorf("client.base_url is not configured")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api := client.New(cfg.Client.BaseURL, cfg.Client.Token, logger)
	api.UseActor(actor)
	cache, redisClient := snapshotCache(ctx, cfg, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	s := session.New(actor, api, cache, logger).WithAvailability(availability(cfg.Client.Availability))
	if err := s.Refresh(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v (showing last known bookings)\n", err)
	}

	if err := runActions(ctx, s, opts.actions); err != nil {
		return err
	}

	if err := render(os.Stdout, s, opts); err != nil {
		return err
	}

	if opts.export != "" {
		path := opts.export
		if !filepath.IsAbs(path) && cfg.Exports.Path != "" && filepath.Dir(path) == "." {
			path = filepath.Join(cfg.Exports.Path, path)
		}
		if err := s.ExportEarnings(path); err != nil {
			return fmt.Errorf("export earnings: %w", err)
		}
		fmt.Fprintf(os.Stderr, "earnings report written to %s\n", path)
	}

	if opts.watch {
		watch(ctx, s, opts, cfg.Client.RefreshEvery(), logger)
	}
	return nil
}

// watch re-renders the view after every background refresh until ctx is done.
// SIGHUP forces an immediate refresh.
func watch(ctx context.Context, s *session.Session, opts options, every time.Duration, logger *zerolog.Logger) {
	refresher := worker.NewRefresher(s, every, worker.DefaultRetryPolicy(), logger)
	refresher.OnRefresh(func(err error) {
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: %v (showing last known bookings)\n", err)
			return
		}
		fmt.Fprintf(os.Stdout, "\n-- %s --\n", time.Now().Format("15:04:05"))
		if err := render(os.Stdout, s, opts); err != nil {
			logger.Error().Err(err).Msg("render failed")
		}
	})

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				refresher.Trigger()
			}
		}
	}()

	refresher.Start(ctx)
}

// snapshotCache prefers Redis with an in-memory fallback; without Redis only memory is used.
func snapshotCache(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (store.SnapshotCache, *redis.Client) {
	ttl := cfg.Client.SnapshotLifetime()
	memory := repository.NewMemorySnapshotRepository(ttl)
	if cfg.Redis.Address == "" {
		return memory, nil
	}

	rc := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, rc); err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, snapshots kept in memory")
		_ = rc.Close()
		return memory, nil
	}
	primary := repository.NewRedisSnapshotRepository(rc, ttl)
	return repository.NewFailoverSnapshotRepository(primary, memory, logger), rc
}

func availability(c config.AvailabilityConfig) schedule.Availability {
	return schedule.Availability{
		Days:       c.Weekdays(),
		StartHour:  c.StartHour,
		EndHour:    c.EndHour,
		BreakStart: c.BreakStart,
		BreakEnd:   c.BreakEnd,
	}
}

func runActions(ctx context.Context, s *session.Session, list string) error {
	if list == "" {
		return nil
	}
	for _, raw := range strings.Split(list, ",") {
		name, idStr, ok := strings.Cut(strings.TrimSpace(raw), ":")
		if !ok {
			return fmt.Errorf("action %q: expected name:id", raw)
		}
		var id int64
		if _, err := fmt.Sscan(idStr, &id); err != nil {
			return fmt.Errorf("action %q: bad id: %w", raw, err)
		}

		var (
			b   models.Booking
			err error
		)
		switch strings.ToLower(name) {
		case "accept":
			b, err = s.Accept(ctx, id)
		case "decline":
			b, err = s.Decline(ctx, id)
		case "start":
			b, err = s.Start(ctx, id)
		case "complete":
			b, err = s.Complete(ctx, id)
		case "cancel":
			b, err = s.Cancel(ctx, id)
		default:
			return fmt.Errorf("unknown action %q", name)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s %d: %v\n", name, id, err)
			continue
		}
		fmt.Fprintf(os.Stderr, "%s %d: now %s\n", name, id, b.Status.Label())
	}
	return nil
}

func render(w io.Writer, s *session.Session, opts options) error {
	var payload any
	switch opts.view {
	case "today":
		payload = s.Today()
	case "upcoming":
		payload = s.Upcoming()
	case "open":
		payload = s.OpenJobs()
	case "week":
		grid := s.Week(models.Date(opts.day))
		if !opts.asJSON {
			return printWeek(w, grid, s.FreeSlots(models.Date(opts.day)))
		}
		payload = weekJSON(grid)
	case "earnings":
		sum := s.Earnings()
		if !opts.asJSON {
			return printEarnings(w, sum, s.Transactions())
		}
		payload = struct {
			Summary      earnings.Summary       `json:"summary"`
			Transactions []earnings.Transaction `json:"transactions"`
		}{sum, s.Transactions()}
	default:
		return fmt.Errorf("unknown view %q", opts.view)
	}

	if opts.asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(payload)
	}
	bookings, _ := payload.([]models.Booking)
	return printBookings(w, bookings)
}

func printBookings(w io.Writer, bookings []models.Booking) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tTIME\tSERVICE\tCUSTOMER\tSTATUS\tPRICE")
	for _, b := range bookings {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			b.ID, b.ServiceDate, b.ServiceTime, b.ServiceType, b.Customer.Name, b.Status.Label(), b.EffectivePrice().StringFixed(2))
	}
	if len(bookings) == 0 {
		fmt.Fprintln(tw, "-\t\t\t\t\t\t")
	}
	return tw.Flush()
}

func printWeek(w io.Writer, grid schedule.Grid, free []schedule.Cell) error {
	freeSet := make(map[schedule.Cell]bool, len(free))
	for _, c := range free {
		freeSet[c] = true
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprint(tw, "HOUR")
	for _, d := range grid.Days {
		t, _ := d.Time()
		fmt.Fprintf(tw, "\t%s %s", t.Format("Mon"), d)
	}
	fmt.Fprintln(tw)

	for _, h := range schedule.Hours() {
		fmt.Fprintf(tw, "%02d:00", h)
		for _, d := range grid.Days {
			cell := "."
			if jobs := grid.At(d, h); len(jobs) > 0 {
				names := make([]string, 0, len(jobs))
				for _, b := range jobs {
					names = append(names, fmt.Sprintf("#%d %s", b.ID, b.ServiceType))
				}
				cell = strings.Join(names, "; ")
			} else if freeSet[schedule.Cell{Date: d, Hour: h}] {
				cell = "free"
			}
			fmt.Fprintf(tw, "\t%s", cell)
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}

type weekCell struct {
	Date     models.Date      `json:"date"`
	Hour     int              `json:"hour"`
	Bookings []models.Booking `json:"bookings"`
}

func weekJSON(grid schedule.Grid) []weekCell {
	var out []weekCell
	for _, d := range grid.Days {
		for _, h := range schedule.Hours() {
			if jobs := grid.At(d, h); len(jobs) > 0 {
				out = append(out, weekCell{Date: d, Hour: h, Bookings: jobs})
			}
		}
	}
	return out
}

func printEarnings(w io.Writer, sum earnings.Summary, txs []earnings.Transaction) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Total\t%s\n", sum.Total.StringFixed(2))
	fmt.Fprintf(tw, "This month\t%s\n", sum.Monthly.StringFixed(2))
	fmt.Fprintf(tw, "This week\t%s\n", sum.Weekly.StringFixed(2))
	fmt.Fprintf(tw, "Pending\t%s\n", sum.Pending.StringFixed(2))
	fmt.Fprintf(tw, "Completed jobs\t%d\n", sum.CompletedJobs)
	fmt.Fprintf(tw, "Average per job\t%s\n", sum.AveragePerJob.StringFixed(2))
	fmt.Fprintf(tw, "Repeat customers\t%s%%\n", sum.RepeatCustomers.StringFixed(1))
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "DATE\tDESCRIPTION\tAMOUNT\tSTATUS")
	for _, tx := range txs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", tx.Date, tx.Description, tx.Amount.StringFixed(2), tx.Status.Label())
	}
	return tw.Flush()
}
