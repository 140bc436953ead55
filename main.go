package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/CodedInternet/goecat/comms"
	"github.com/CodedInternet/goecat/onboard"
	"github.com/CodedInternet/goecat/onboard/fieldbus"
	"github.com/asdine/storm/v3"
	"github.com/caarlos0/env/v6"
	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type EnvConfig struct {
	JWT_ISSUER string `env:"RIG_ID" envDefault:"DEV"`
	JWT_SECRET string `env:"JWT_SECRET"`
	DEBUG      bool   `env:"DEBUG" envDefault:"false"`
	LOG_LEVEL  string `env:"LOG_LEVEL" envDefault:"info"`
	DATADIR    string `env:"DATADIR" envDefault:"./tmp"`
	CONFIG     string `env:"RIG_CONFIG" envDefault:"./rig_config.yaml"`
	HTMLDIR    string `env:"HTMLDIR" envDefault:"./frontend/dist/"`

	Log        *logrus.Logger
	DB         *storm.DB
	Rig        *onboard.Rig
	Conductor  *comms.Conductor
	Supervisor *comms.Supervisor
}

var (
	ENV *EnvConfig
)

func init() {
	// a missing .env is fine, the environment may carry everything
	godotenv.Load()

	ENV = new(EnvConfig)
	if err := env.Parse(ENV); err != nil {
		panic(err)
	}
	if ENV.JWT_SECRET != "" {
		JWT_HMAC_SECRET = []byte(ENV.JWT_SECRET)
	}

	ENV.Log = logrus.New()
	if level, err := logrus.ParseLevel(ENV.LOG_LEVEL); err == nil {
		ENV.Log.SetLevel(level)
	}
	if ENV.DEBUG {
		ENV.Log.SetLevel(logrus.DebugLevel)
	}
}

func main() {
	simulated := flag.Bool("sim", false, "Run against the simulated fieldbus master")
	port := flag.String("port", "0.0.0.0:80", "Specify the ip:port to listen on")
	configFile := flag.String("config", ENV.CONFIG, "Rig configuration file")
	noShell := flag.Bool("noshell", false, "Do not start the operator shell")
	flag.Parse()

	log := ENV.Log

	//---
	// Storage
	//---
	dbFile, err := filepath.Abs(filepath.Join(ENV.DATADIR, "rig.db"))
	if err != nil {
		log.WithError(err).Fatal("bad data directory")
	}
	if err := os.MkdirAll(filepath.Dir(dbFile), 0755); err != nil {
		log.WithError(err).Fatal("unable to create data directory")
	}
	ENV.DB, err = openDb(dbFile)
	if err != nil {
		log.WithError(err).Fatal("unable to open database")
	}
	defer ENV.DB.Close()

	//---
	// Rig
	//---
	config, err := onboard.LoadRigConfig(*configFile)
	if err != nil {
		log.WithError(err).Fatal("unable to load rig config")
	}

	var master fieldbus.Master
	if *simulated {
		log.Info("using simulated fieldbus master")
		master = fieldbus.NewSimulatedMaster(config.Identities(), config.IO)
	}

	ENV.Rig, err = onboard.NewRig(config, master, ENV.DB, log)
	if err != nil {
		log.WithError(err).Fatal("unable to initialize rig")
	}
	defer ENV.Rig.Close()

	done := make(chan struct{})
	defer close(done)

	ENV.Supervisor = comms.NewSupervisor(ENV.Rig, log)
	frames, cancel := ENV.Rig.Subscribe()
	defer cancel()
	go ENV.Supervisor.Watch(frames, done)

	ENV.Conductor = &comms.Conductor{
		Device:     ENV.Rig,
		Supervisor: ENV.Supervisor,
		Log:        log.WithField("component", "conductor"),
	}
	go ENV.Conductor.UpdateClients(done)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	if config.PLC.Address != "" {
		plc, err := comms.NewPLCMirror(config.PLC, ENV.Rig, ENV.Supervisor, log)
		if err != nil {
			log.WithError(err).Error("plc mirror disabled")
		} else {
			defer plc.Close()
			go plc.Run(ctx)
		}
	}

	if !*noShell {
		go newShell().Start()
	}

	//---
	// HTTP
	//---
	srv := &http.Server{Addr: *port, Handler: newRouter()}

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.WithField("addr", *port).Info("listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Error("server stopped")
	}
}

func newRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.RedirectSlashes)
	r.Use(middleware.Recoverer) // make sure this is last

	r.Route("/api", func(r chi.Router) {
		r.Post("/login", Login)

		r.Group(func(r chi.Router) {
			r.Use(ValidateJWT)

			r.Get("/refresh_token", JWTRefresh)
			r.Get("/status", StatusHandler)
			r.Get("/events", EventsHandler)
			r.Post("/safety", SafetyHandler)

			r.With(RequireAdmin).Post("/lifecycle/{transition}", LifecycleHandler)
		})
	})

	r.Route("/ws", func(r chi.Router) {
		if !ENV.DEBUG {
			r.Use(ValidateJWT)
		} else {
			ENV.Log.Warn("Running in debug mode. Websocket authentication disabled.")
		}

		r.Get("/signal", WebRTCSignalHandler)
		r.Get("/telemetry", TelemetryHandler)
		r.Get("/input", InputHandler)
	})

	FileServer(r, "/", http.Dir(ENV.HTMLDIR))

	return r
}

func openDb(dbFile string) (db *storm.DB, err error) {
	db, err = storm.Open(dbFile)
	if err != nil {
		return
	}

	// call inits for each type
	if err := db.Init(&User{}); err != nil {
		db.Close()
		return nil, err
	}

	return
}

// FileServer conveniently sets up a http.FileServer handler to serve
// static files from a http.FileSystem.
func FileServer(r chi.Router, path string, root http.FileSystem) {
	if strings.ContainsAny(path, "{}*") {
		panic("FileServer does not permit URL parameters.")
	}

	fs := http.StripPrefix(path, http.FileServer(root))

	if path != "/" && path[len(path)-1] != '/' {
		r.Get(path, http.RedirectHandler(path+"/", 301).ServeHTTP)
		path += "/"
	}
	path += "*"

	r.Get(path, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.ServeHTTP(w, r)
	}))
}
