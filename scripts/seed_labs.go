// 手动导入实验定义脚本
//
// 服务启动时会自动执行同样的导入（release 模式需 -migrate）。
// 此脚本用于只更新评分标准、不重启服务的场景。
//
// 用法: go run scripts/seed_labs.go [labs.toml]

package main

import (
	"log"
	"os"

	"skilllab_backend/internal/config"
	"skilllab_backend/pkg/database"
	"skilllab_backend/pkg/logger"
)

func main() {
	cfg, err := config.LoadConfig("configs")
	if err != nil {
		log.Fatalf("无法读取配置文件: %v", err)
	}

	logger.InitLogger(cfg)
	defer logger.Log.Sync()

	seedFile := cfg.Labs.SeedFile
	if len(os.Args) > 1 {
		seedFile = os.Args[1]
	}

	seeds, err := database.LoadLabSeeds(seedFile)
	if err != nil {
		log.Fatalf("解析实验定义失败: %v", err)
	}

	db, err := database.InitDB(&cfg.Database, cfg.Server.Mode == "debug")
	if err != nil {
		log.Fatalf("数据库连接失败: %v", err)
	}

	if err := database.Migrate(db); err != nil {
		log.Fatalf("数据库迁移失败: %v", err)
	}

	log.Printf("导入 %d 个实验定义...", len(seeds))
	if err := database.SeedLabs(db, seeds); err != nil {
		log.Fatalf("导入失败: %v", err)
	}
	log.Println("完成！")
}
