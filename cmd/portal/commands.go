package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v3"

	"github.com/shifalink/portal-client/internal/api"
	"github.com/shifalink/portal-client/internal/app"
	"github.com/shifalink/portal-client/internal/config"
	"github.com/shifalink/portal-client/internal/payments"
	"github.com/shifalink/portal-client/internal/session"
	"github.com/shifalink/portal-client/internal/store"
	"github.com/shifalink/portal-client/pkg/logging"
)

// newClient builds a bare REST client for one-shot commands. listen mode
// goes through the full app wiring instead.
func newClient(cfg *config.Config, logger *logging.Logger, token string) *api.Client {
	sessions := session.NewStore()
	if token != "" {
		sessions.SetAuth(0, token)
	}
	return api.New(cfg.APIBaseURL, sessions, api.WithLogger(logger))
}

func bearerToken(c *cli.Command) (string, error) {
	token := c.String("token")
	if token == "" {
		token = os.Getenv("PORTAL_TOKEN")
	}
	if token == "" {
		return "", fmt.Errorf("no token: run `portal login` and export PORTAL_TOKEN")
	}
	return token, nil
}

func loginCommand(cfg *config.Config, logger *logging.Logger) *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Authenticate and print a bearer token",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "email", Usage: "Account email", Required: true},
			&cli.StringFlag{Name: "password", Usage: "Account password", Required: true},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			client := newClient(cfg, logger, "")
			res, err := client.Login(ctx, api.LoginInput{
				Email:    c.String("email"),
				Password: c.String("password"),
			})
			if err != nil {
				return err
			}
			fmt.Printf("Logged in as %s (%s)\n", res.User.Name, res.User.Role)
			fmt.Printf("export PORTAL_TOKEN=%s\n", res.AccessToken)
			return nil
		},
	}
}

func appointmentsCommand(cfg *config.Config, logger *logging.Logger) *cli.Command {
	return &cli.Command{
		Name:  "appointments",
		Usage: "List and manage appointments",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List appointments, optionally by status",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "status", Usage: "pending, awaiting_payment, confirmed, cancelled or completed"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					token, err := bearerToken(c)
					if err != nil {
						return err
					}
					client := newClient(cfg, logger, token)
					appts, err := client.Appointments(ctx, api.AppointmentStatus(c.String("status")))
					if err != nil {
						return err
					}
					for _, a := range appts {
						name := ""
						if a.Doctor != nil {
							name = " with " + a.Doctor.Name
						}
						fmt.Printf("#%d  %s  %s%s\n", a.ID, a.AppointmentDate, a.Status, name)
					}
					return nil
				},
			},
			{
				Name:  "book",
				Usage: "Book an appointment with a doctor",
				Flags: []cli.Flag{
					&cli.Int64Flag{Name: "doctor", Usage: "Doctor id", Required: true},
					&cli.StringFlag{Name: "date", Usage: "Appointment date, e.g. 2026-09-01 10:00", Required: true},
					&cli.StringFlag{Name: "notes", Usage: "Optional notes"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					token, err := bearerToken(c)
					if err != nil {
						return err
					}
					client := newClient(cfg, logger, token)
					appt, err := client.CreateAppointment(ctx, api.CreateAppointmentInput{
						DoctorID:        c.Int64("doctor"),
						AppointmentDate: c.String("date"),
						Notes:           c.String("notes"),
					})
					if err != nil {
						return err
					}
					fmt.Printf("Booked appointment #%d (%s)\n", appt.ID, appt.Status)
					return nil
				},
			},
			appointmentStatusCommand(cfg, logger, "confirm", "Confirm an appointment (moves it to awaiting payment)",
				func(ctx context.Context, client *api.Client, id int64) (*api.Appointment, error) {
					return client.ConfirmAppointment(ctx, id)
				}),
			appointmentStatusCommand(cfg, logger, "cancel", "Cancel an appointment",
				func(ctx context.Context, client *api.Client, id int64) (*api.Appointment, error) {
					return client.CancelAppointment(ctx, id)
				}),
			appointmentStatusCommand(cfg, logger, "complete", "Mark an appointment completed",
				func(ctx context.Context, client *api.Client, id int64) (*api.Appointment, error) {
					return client.CompleteAppointment(ctx, id)
				}),
		},
	}
}

func appointmentStatusCommand(cfg *config.Config, logger *logging.Logger, name, usage string,
	fn func(ctx context.Context, client *api.Client, id int64) (*api.Appointment, error)) *cli.Command {
	return &cli.Command{
		Name:  name,
		Usage: usage,
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "id", Usage: "Appointment id", Required: true},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			token, err := bearerToken(c)
			if err != nil {
				return err
			}
			appt, err := fn(ctx, newClient(cfg, logger, token), c.Int64("id"))
			if err != nil {
				return err
			}
			fmt.Printf("Appointment #%d is now %s\n", appt.ID, appt.Status)
			return nil
		},
	}
}

func doctorsCommand(cfg *config.Config, logger *logging.Logger) *cli.Command {
	return &cli.Command{
		Name:  "doctors",
		Usage: "List doctors available for booking",
		Action: func(ctx context.Context, c *cli.Command) error {
			token, err := bearerToken(c)
			if err != nil {
				return err
			}
			doctors, err := newClient(cfg, logger, token).AvailableDoctors(ctx)
			if err != nil {
				return err
			}
			for _, d := range doctors {
				fmt.Printf("#%d  %s  %s  fee %s\n", d.ID, d.Name, d.Specialization, d.ConsultationFee)
			}
			return nil
		},
	}
}

func chatsCommand(cfg *config.Config, logger *logging.Logger) *cli.Command {
	return &cli.Command{
		Name:  "chats",
		Usage: "List conversations and send messages",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List conversations",
				Action: func(ctx context.Context, c *cli.Command) error {
					token, err := bearerToken(c)
					if err != nil {
						return err
					}
					chats, err := newClient(cfg, logger, token).Chats(ctx)
					if err != nil {
						return err
					}
					for _, ch := range chats {
						other := ""
						if ch.OtherUser != nil {
							other = ch.OtherUser.Name
						}
						fmt.Printf("%s  %s  %s  unread %d\n", ch.UUID, ch.Status, other, ch.UnreadCount)
					}
					return nil
				},
			},
			{
				Name:  "messages",
				Usage: "Print a conversation's messages",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "uuid", Usage: "Chat uuid", Required: true},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					token, err := bearerToken(c)
					if err != nil {
						return err
					}
					msgs, err := newClient(cfg, logger, token).Messages(ctx, c.String("uuid"))
					if err != nil {
						return err
					}
					for _, m := range msgs {
						fmt.Printf("[%s] %d: %s\n", m.CreatedAt.Format(time.RFC3339), m.SenderID, m.Content)
					}
					return nil
				},
			},
			{
				Name:  "send",
				Usage: "Send a message",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "uuid", Usage: "Chat uuid", Required: true},
					&cli.StringFlag{Name: "content", Usage: "Message text", Required: true},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					token, err := bearerToken(c)
					if err != nil {
						return err
					}
					msg, err := newClient(cfg, logger, token).SendMessage(ctx, c.String("uuid"), c.String("content"), "", nil)
					if err != nil {
						return err
					}
					fmt.Printf("Sent message #%d\n", msg.ID)
					return nil
				},
			},
		},
	}
}

func payCommand(cfg *config.Config, logger *logging.Logger) *cli.Command {
	return &cli.Command{
		Name:  "pay",
		Usage: "Pay for an appointment awaiting payment",
		Commands: []*cli.Command{
			{
				Name:  "start",
				Usage: "Create a payment intent and print the client secret",
				Flags: []cli.Flag{
					&cli.Int64Flag{Name: "appointment", Usage: "Appointment id", Required: true},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					token, err := bearerToken(c)
					if err != nil {
						return err
					}
					client := newClient(cfg, logger, token)
					flow := payments.NewFlow(client, store.NewAppointments(), logger)
					intent, err := flow.Begin(ctx, c.Int64("appointment"))
					if err != nil {
						return err
					}
					fmt.Printf("Client secret: %s\n", intent.ClientSecret)
					fmt.Println("Complete the payment in the hosted element, then run `portal pay finish --url <redirect url>`")
					return nil
				},
			},
			{
				Name:  "finish",
				Usage: "Confirm a payment from the provider redirect URL",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "url", Usage: "Redirect URL from the payment provider", Required: true},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					token, err := bearerToken(c)
					if err != nil {
						return err
					}
					redirect, err := payments.ParseRedirect(c.String("url"))
					if err != nil {
						return err
					}
					client := newClient(cfg, logger, token)
					flow := payments.NewFlow(client, store.NewAppointments(), logger)
					if _, err := flow.Complete(ctx, redirect); err != nil {
						return err
					}
					fmt.Printf("Payment confirmed for appointment #%d\n", redirect.AppointmentID)
					return nil
				},
			},
		},
	}
}

// consoleNotifier prints toasts in listen mode.
type consoleNotifier struct{}

func (consoleNotifier) Success(msg string) { fmt.Printf("[ok]   %s\n", msg) }
func (consoleNotifier) Warning(msg string) { fmt.Printf("[warn] %s\n", msg) }
func (consoleNotifier) Info(msg string)    { fmt.Printf("[info] %s\n", msg) }

func listenCommand(cfg *config.Config, logger *logging.Logger) *cli.Command {
	return &cli.Command{
		Name:  "listen",
		Usage: "Follow the realtime event stream until interrupted",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "chat", Usage: "Also follow a chat channel by uuid"},
			&cli.StringFlag{Name: "diag-addr", Usage: "Serve /healthz and /metrics on this address", Value: cfg.DiagAddr},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			token, err := bearerToken(c)
			if err != nil {
				return err
			}

			a, err := app.New(cfg, app.Options{
				Logger:   logger,
				Notifier: consoleNotifier{},
			})
			if err != nil {
				return err
			}
			defer a.Close()

			user, err := a.Resume(ctx, token)
			if err != nil {
				return err
			}
			fmt.Printf("Listening as %s; unread notifications: %d\n", user.Name, a.Notifications.UnreadCount())

			if chat := c.String("chat"); chat != "" {
				if err := a.OpenChat(ctx, chat); err != nil {
					return err
				}
				defer a.CloseChat(chat)
			}

			var diag *http.Server
			if addr := c.String("diag-addr"); addr != "" {
				diag = diagServer(addr, logger)
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = diag.Shutdown(shutdownCtx)
				}()
			}

			<-ctx.Done()
			logger.Info("shutting down")
			return nil
		},
	}
}

func diagServer(addr string, logger *logging.Logger) *http.Server {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	go func() {
		logger.Info("diagnostics listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("diagnostics server error", "error", err)
		}
	}()
	return srv
}
