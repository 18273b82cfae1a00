package main

import (
	"context"
	"time"

	"github.com/branchmux/branchmux/content"
	"github.com/branchmux/branchmux/messaging"
	"github.com/branchmux/branchmux/notification"
	"github.com/branchmux/branchmux/realtime"
	"github.com/branchmux/branchmux/server"
	"github.com/branchmux/branchmux/server/middlewares"
	"github.com/branchmux/branchmux/utils"
	"github.com/branchmux/branchmux/utils/dotenv"
	. "github.com/branchmux/branchmux/utils/flag"
	. "github.com/branchmux/branchmux/utils/log"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	gintrace "gopkg.in/DataDog/dd-trace-go.v1/contrib/gin-gonic/gin"
)

const sweepInterval = time.Hour

func main() {
	Parse()

	if err := dotenv.LoadDotEnvs(); err != nil {
		panic(err)
	}

	db, err := utils.GetDBConnection()
	if err != nil {
		Log.Fatal("cannot connect to DB: ", err)
	}
	if err := utils.DatabaseSetupAndMigration(db); err != nil {
		Log.Fatal("cannot migrate DB: ", err)
	}

	// The realtime layer is in-process: one hub per instance. Scaling the
	// fan-out across instances needs an external pub/sub in front of it.
	hub := realtime.NewHub()
	dispatcher := realtime.NewDispatcher(hub)

	notifier := notification.NewEngine(db, dispatcher)
	graph := content.NewGraph(db, notifier, dispatcher)
	if store, err := utils.GetViewStatusStore(); err != nil {
		Log.Warn("redis unavailable, view dedup disabled: ", err)
	} else {
		graph.WithViewStore(store)
	}
	messages := messaging.NewService(db, dispatcher)
	gateway := server.NewGateway(db, hub, dispatcher, messages)

	stopSweeper := notification.NewSweeper(notifier, sweepInterval).Start()
	defer stopSweeper(context.Background())

	if !*IsDevelopment {
		gin.SetMode(gin.ReleaseMode)
	}
	// Default With the Logger and Recovery middleware already attached
	router := gin.Default()
	router.Use(cors.Default())
	router.Use(gintrace.Middleware(*ServiceName))
	router.Use(middlewares.Identity())

	srv := server.New(graph, messages, notifier, gateway)
	srv.RegisterRoutes(router)

	Log.Info("api server starts up")
	router.Run(":8080")
}
