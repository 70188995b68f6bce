package main

import (
	"context"
	"flag"
	"log"
	"strconv"
	"strings"

	"cpxtbgateway/internal/config"
	"cpxtbgateway/internal/db"
	"cpxtbgateway/internal/email"
	"cpxtbgateway/internal/mail"
	"cpxtbgateway/internal/store"
)

func main() {
	excludeFlag := flag.String("exclude", "", "comma-separated payment ids to skip")
	flag.Parse()

	excludeIDs, err := parseIDs(*excludeFlag)
	if err != nil {
		log.Fatalf("invalid -exclude value: %v", err)
	}

	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer pool.Close()

	svc := &email.Service{
		Store: store.New(pool),
		Sender: &mail.SMTPSender{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			FromAddr: cfg.SMTP.FromAddr,
			FromName: cfg.SMTP.FromName,
		},
		ExplorerTxURL: cfg.Chain.ExplorerTxURL,
	}

	report, err := svc.ResendMissingConfirmations(ctx, excludeIDs)
	if err != nil {
		log.Fatalf("resend failed: %v", err)
	}

	log.Printf("resend report: scanned=%d sent=%d failed=%d excluded=%d",
		report.Scanned, report.Sent, report.Failed, report.Excluded)
	if len(report.FailedRef) > 0 {
		log.Printf("resend failures: %s", strings.Join(report.FailedRef, ","))
	}
}

func parseIDs(v string) ([]int64, error) {
	if strings.TrimSpace(v) == "" {
		return nil, nil
	}
	parts := strings.Split(v, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
