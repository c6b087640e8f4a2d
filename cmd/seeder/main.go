// Command seeder inserts reminders for local runs and demos.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"

	"github.com/LeventeLantos/callme-reminders/internal/model"
	"github.com/LeventeLantos/callme-reminders/internal/repo"
)

const localLayout = "2006-01-02T15:04"

type seederEnv struct {
	PostgresURL string `env:"POSTGRES_URL,required"`
	MaxAttempts int    `env:"MAX_ATTEMPTS,default=3"`
	AutoMigrate bool   `env:"AUTO_MIGRATE,default=false"`
}

type options struct {
	userID   int64
	title    string
	message  string
	phone    string
	at       string
	timezone string
	count    int
	spacing  time.Duration
}

func main() {
	_ = godotenv.Load()

	if err := run(context.Background(), os.Args[1:]); err != nil {
		slog.Error("seeder failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}

	var env seederEnv
	if err := envconfig.Process(ctx, &env); err != nil {
		return err
	}

	inputs, err := buildInputs(opts, time.Now())
	if err != nil {
		return err
	}

	pool, err := repo.NewPool(ctx, env.PostgresURL, 2)
	if err != nil {
		return err
	}
	defer pool.Close()

	store := repo.NewPostgresReminderRepo(pool)
	if env.AutoMigrate {
		if err := store.Migrate(ctx); err != nil {
			return err
		}
	}

	n, err := seed(ctx, store, inputs, env.MaxAttempts)
	slog.Info("reminders seeded", "count", n)
	return err
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("seeder", flag.ContinueOnError)
	fs.Int64Var(&o.userID, "user", 1, "owning user id")
	fs.StringVar(&o.title, "title", "Demo reminder", "reminder title")
	fs.StringVar(&o.message, "message", "This is a test call from the reminder service.", "text read to the callee")
	fs.StringVar(&o.phone, "phone", "", "destination number in E.164 form")
	fs.StringVar(&o.at, "at", "", "local wall-clock time ("+localLayout+"); empty means one minute from now")
	fs.StringVar(&o.timezone, "tz", "UTC", "IANA zone name or UTC±H[:MM]")
	fs.IntVar(&o.count, "count", 1, "number of reminders to create")
	fs.DurationVar(&o.spacing, "spacing", time.Minute, "gap between consecutive reminders")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.phone == "" {
		return o, errors.New("-phone is required")
	}
	tzSet := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "tz" {
			tzSet = true
		}
	})
	if tzSet && o.at == "" {
		return o, errors.New("-tz requires -at; without -at the due time is in UTC")
	}
	if o.count <= 0 {
		return o, errors.New("-count must be > 0")
	}
	return o, nil
}

// buildInputs expands the flags into count reminders spaced apart. Without
// -at the first one is due a minute after now, expressed in UTC.
func buildInputs(o options, now time.Time) ([]model.NewReminderInput, error) {
	start := now.UTC().Add(time.Minute).Truncate(time.Minute)
	tzName := o.timezone
	if o.at != "" {
		t, err := time.Parse(localLayout, o.at)
		if err != nil {
			return nil, fmt.Errorf("parse -at: %w", err)
		}
		start = t
	} else {
		tzName = "UTC"
	}

	inputs := make([]model.NewReminderInput, 0, o.count)
	for i := 0; i < o.count; i++ {
		title := o.title
		if o.count > 1 {
			title = fmt.Sprintf("%s #%d", o.title, i+1)
		}
		inputs = append(inputs, model.NewReminderInput{
			UserID:      o.userID,
			Title:       title,
			Message:     o.message,
			PhoneNumber: o.phone,
			DateTime:    start.Add(time.Duration(i) * o.spacing),
			Timezone:    tzName,
		})
	}
	return inputs, nil
}

func seed(ctx context.Context, store repo.ReminderRepository, inputs []model.NewReminderInput, maxAttempts int) (int, error) {
	created := 0
	for _, in := range inputs {
		m, err := model.NewReminder(in, maxAttempts)
		if err != nil {
			return created, fmt.Errorf("reminder %q: %w", in.Title, err)
		}
		if err := store.Create(ctx, m); err != nil {
			return created, fmt.Errorf("insert reminder %q: %w", in.Title, err)
		}
		created++
		slog.Info("reminder created", "reminder_id", m.ID, "due_utc", m.DateTimeUTC.Format(time.RFC3339), "timezone", m.Timezone)
	}
	return created, nil
}
