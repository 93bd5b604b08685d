package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/session-booking/internal/app"
	"github.com/hackgods/session-booking/internal/appointment"
	"github.com/hackgods/session-booking/internal/auth"
	"github.com/hackgods/session-booking/internal/config"
	"github.com/hackgods/session-booking/internal/observability"
)

func main() {
	clients := flag.Int("clients", 5, "number of demo clients to mint tokens for")
	bookings := flag.Int("bookings", 20, "number of appointments to book")
	days := flag.Int("days", 7, "spread bookings over this many days starting tomorrow")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel, cfg.Env)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	rt, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("startup failed", zap.Error(err))
	}
	defer rt.Close(context.Background())

	principals, err := mintTokens(rt.Tokens, *clients)
	if err != nil {
		logger.Fatal("mint tokens", zap.Error(err))
	}

	booked, err := seedAppointments(ctx, rt, principals, *bookings, *days)
	if err != nil {
		logger.Fatal("seed appointments", zap.Error(err))
	}

	logger.Info("seed complete", zap.Int("clients", len(principals)), zap.Int("booked", booked))
}

// mintTokens prints one admin token and n client tokens so the API can be
// exercised by hand.
func mintTokens(tokens *auth.TokenManager, n int) ([]auth.Principal, error) {
	admin := auth.Principal{SubjectID: "admin-" + uuid.NewString(), Name: "Clinic Admin", Email: "admin@example.com", Role: auth.RoleAdmin}
	tok, exp, err := tokens.Issue(admin)
	if err != nil {
		return nil, err
	}
	fmt.Printf("admin  %s  expires %s\n  %s\n", admin.SubjectID, exp.Format(time.RFC3339), tok)

	principals := make([]auth.Principal, 0, n)
	for i := 0; i < n; i++ {
		p := auth.Principal{SubjectID: uuid.NewString(), Name: gofakeit.Name(), Email: gofakeit.Email()}
		tok, _, err := tokens.Issue(p)
		if err != nil {
			return nil, err
		}
		fmt.Printf("client %s  %s\n  %s\n", p.SubjectID, p.Name, tok)
		principals = append(principals, p)
	}
	return principals, nil
}

func seedAppointments(ctx context.Context, rt *app.Runtime, principals []auth.Principal, count, days int) (int, error) {
	if len(principals) == 0 || count <= 0 || days <= 0 {
		return 0, nil
	}

	services := rt.Catalog.List()
	loc := rt.Service.Location()
	tomorrow := time.Now().In(loc).AddDate(0, 0, 1)

	booked := 0
	for i := 0; i < count; i++ {
		p := principals[gofakeit.Number(0, len(principals)-1)]
		svc := services[gofakeit.Number(0, len(services)-1)]
		date := tomorrow.AddDate(0, 0, gofakeit.Number(0, days-1))
		d, err := appointment.ParseDate(date.Format(appointment.DateLayout), loc)
		if err != nil {
			return booked, err
		}

		free, err := rt.Service.AvailableSlots(ctx, d, svc.ID)
		if err != nil {
			return booked, err
		}
		if len(free) == 0 {
			continue
		}

		_, err = rt.Service.Book(ctx, appointment.BookRequest{
			SubjectID:    p.SubjectID,
			ContactName:  p.Name,
			ContactEmail: p.Email,
			ServiceID:    svc.ID,
			ServiceLabel: svc.Title,
			Date:         d,
			Slot:         free[gofakeit.Number(0, len(free)-1)],
			Notes:        gofakeit.Phrase(),
		})
		switch {
		case err == nil:
			booked++
		case errors.Is(err, appointment.ErrSlotTaken), errors.Is(err, appointment.ErrInvalidSlot):
			rt.Logger.Debug("slot unavailable, skipping", zap.Error(err))
		default:
			return booked, err
		}
	}
	return booked, nil
}
