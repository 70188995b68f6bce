package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cpxtbgateway/internal/chain"
	"cpxtbgateway/internal/config"
	"cpxtbgateway/internal/db"
	"cpxtbgateway/internal/email"
	"cpxtbgateway/internal/httpapi"
	"cpxtbgateway/internal/mail"
	"cpxtbgateway/internal/notify"
	"cpxtbgateway/internal/reconcile"
	"cpxtbgateway/internal/services"
	"cpxtbgateway/internal/store"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.Connect(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer pool.Close()

	st := store.New(pool)
	hub := notify.NewHub()

	sender := &mail.SMTPSender{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		FromAddr: cfg.SMTP.FromAddr,
		FromName: cfg.SMTP.FromName,
	}
	emailSvc := &email.Service{
		Store:         st,
		Sender:        sender,
		ExplorerTxURL: cfg.Chain.ExplorerTxURL,
	}

	reconciler := &reconcile.Reconciler{
		Store:    st,
		Notifier: hub,
		Email:    emailSvc,
	}

	listener := chain.NewListener(
		cfg.Chain.WSEndpoint,
		cfg.Chain.TokenContract,
		cfg.Chain.TokenDecimals,
		cfg.Chain.BackfillBlocks,
		reconciler,
	)

	merchants, err := st.ListMerchants(ctx)
	if err != nil {
		log.Fatalf("list merchants failed: %v", err)
	}
	listener.StartMonitoring(merchants)

	paymentSvc := &services.PaymentService{
		Store:     st,
		Registrar: listener,
		TTL:       time.Duration(cfg.Payments.TTLMinutes) * time.Minute,
	}

	go listener.Run(ctx)
	go runExpirySweep(ctx, st, time.Duration(cfg.Payments.SweepIntervalSeconds)*time.Second)

	h := httpapi.NewHandler(paymentSvc, hub)
	srv := httpapi.NewServer(h)
	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: srv.Router,
	}

	go func() {
		log.Printf("server listening on %s", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	cancel()

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(ctxShutdown)
}

func runExpirySweep(ctx context.Context, st *store.Store, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		expired, err := st.MarkExpired(ctx, time.Now().UTC())
		if err != nil {
			log.Printf("expiry sweep failed: %v", err)
		} else if expired > 0 {
			log.Printf("expiry sweep: %d payment(s) expired", expired)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
