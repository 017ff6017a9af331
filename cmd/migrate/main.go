package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/aihub/knowledge-rag/internal/config"
	"github.com/aihub/knowledge-rag/internal/database"
	"github.com/sirupsen/logrus"

	_ "github.com/lib/pq" // PostgreSQL driver
)

func main() {
	var action = flag.String("action", "up", "Migration action: up, down, steps, version, force")
	var steps = flag.Int("steps", 0, "Number of steps for the steps action, negative rolls back")
	var version = flag.Int("version", -1, "Target version for the force action")
	var configFile = flag.String("config", "", "Optional config file")
	flag.Parse()

	config.LoadDotEnv()

	// 初始化配置
	cfg, err := config.NewLoader(*configFile, nil).Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 连接数据库，迁移管理器关闭时一并关闭
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)

	migrationManager, err := database.NewMigrationManager(db, cfg.Database.MigrationsPath, logger)
	if err != nil {
		log.Fatalf("Failed to create migration manager: %v", err)
	}
	defer migrationManager.Close()

	// 执行迁移操作
	switch *action {
	case "up":
		fmt.Println("Running migrations up...")
		if err := migrationManager.Up(); err != nil {
			log.Fatalf("Migration up failed: %v", err)
		}
		fmt.Println("Migrations completed successfully")

	case "down":
		fmt.Println("Rolling back last migration...")
		if err := migrationManager.Down(); err != nil {
			log.Fatalf("Migration down failed: %v", err)
		}
		fmt.Println("Rollback completed successfully")

	case "steps":
		if *steps == 0 {
			log.Fatal("Steps must be non-zero for steps action")
		}
		if err := migrationManager.Steps(*steps); err != nil {
			log.Fatalf("Migration by %d steps failed: %v", *steps, err)
		}
		fmt.Printf("Migrated by %d steps\n", *steps)

	case "version":
		version, dirty, err := migrationManager.Version()
		if err != nil {
			log.Fatalf("Failed to get version: %v", err)
		}
		fmt.Printf("Current version: %d", version)
		if dirty {
			fmt.Printf(" (dirty - manual intervention required)")
		}
		fmt.Println()

	case "force":
		if *version < 0 {
			log.Fatal("Version must be specified for force action")
		}
		if err := migrationManager.Force(*version); err != nil {
			log.Fatalf("Force version failed: %v", err)
		}
		fmt.Printf("Forced version %d\n", *version)

	default:
		fmt.Printf("Unknown action: %s\n", *action)
		fmt.Println("Available actions: up, down, steps, version, force")
		os.Exit(1)
	}
}
