package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"

	"seedbox-gateway/internal/catalog"
	"seedbox-gateway/internal/config"
	"seedbox-gateway/internal/httpapi"
	"seedbox-gateway/internal/janitor"
	"seedbox-gateway/internal/middleware"
	"seedbox-gateway/internal/scanner"
	"seedbox-gateway/internal/sftpx"
	"seedbox-gateway/internal/token"
	"seedbox-gateway/internal/transcode"
)

func main() {
	_ = godotenv.Load(".env")

	config.Load()
	config.SetupLogging()

	if config.SFTPHost() == "" {
		log.Fatal("SFTP_HOST missing")
	}
	secret := config.LinkSecret()
	if secret == "" {
		log.Fatal("LINK_SECRET missing")
	}

	factory := sftpx.NewFactory(sftpx.Config{
		Host:     config.SFTPHost(),
		Port:     config.SFTPPort(),
		User:     config.SFTPUsername(),
		Password: config.SFTPPassword(),
		KeyPath:  config.SSHKeyPath(),
		KeyText:  config.SSHKeyText(),
	})

	roots := map[string]scanner.Root{
		scanner.KindBooks: {Path: config.BooksRoot(), Exts: config.BookExts()},
	}
	if p := config.MoviesRoot(); p != "" {
		roots[scanner.KindMovies] = scanner.Root{Path: p, Exts: config.MovieExts()}
	}
	if p := config.TVRoot(); p != "" {
		roots[scanner.KindTV] = scanner.Root{Path: p, Exts: config.TVExts()}
	}
	if p := config.MusicRoot(); p != "" {
		roots[scanner.KindMusic] = scanner.Root{Path: p, Exts: config.MusicExts()}
	}

	sc := scanner.New(factory, roots)
	catalogs := catalog.NewService(sc, config.CacheTTL())
	registry := token.NewRegistry()

	srv := &httpapi.Server{
		Catalogs:   catalogs,
		Scanner:    sc,
		Factory:    factory,
		Codec:      token.NewCodec(secret),
		Registry:   registry,
		Transcoder: transcode.New(config.FFmpegPath(), config.FFprobePath(), config.ProbeWindowBytes(), config.MaxTranscodes()),
		BaseURL:    config.PublicBaseURL(),
		LinkTTL:    config.LinkTTL(),
		SingleUse:  config.LinkSingleUse(),
		MaxUses:    config.LinkMaxUses(),
	}

	mux := http.NewServeMux()
	srv.Register(mux)

	addr := config.ListenAddr()
	log.Printf("[boot] gateway listening on %s sftp=%s:%d kinds=%v cacheTTL=%s linkTTL=%s singleUse=%v",
		addr, config.SFTPHost(), config.SFTPPort(), sc.Kinds(), config.CacheTTL(), config.LinkTTL(), config.LinkSingleUse())

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	go janitor.Run(rootCtx, catalogs, sc.Kinds(), registry, config.CacheTTL())

	httpSrv := &http.Server{
		Addr:     addr,
		Handler:  middleware.Recover(mux),
		ErrorLog: log.New(log.Writer(), "[http] ", 0),
	}

	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-rootCtx.Done()
	log.Printf("[boot] shutdown requested")

	shCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shCtx)

	log.Printf("[boot] shutdown complete")
}
