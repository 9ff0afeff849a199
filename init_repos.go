// Package main: Yerel cache katmanı başlatma.
//
// initRepositories, SQLite veritabanını açar ve repository'leri oluşturur.
// Database.Path boşsa cache kapalıdır; servisler nil repository ile çalışır.
package main

import (
	"log"

	"github.com/akinalp/mqvi-client/config"
	"github.com/akinalp/mqvi-client/database"
	"github.com/akinalp/mqvi-client/repository"
)

// Repositories, repository instance'larını tutan container struct.
type Repositories struct {
	Transcript repository.TranscriptRepository

	db *database.DB
}

// initRepositories, veritabanını açar. Açılamazsa cache'siz devam edilir;
// yerel cache client için opsiyoneldir.
func initRepositories(cfg *config.Config) *Repositories {
	if cfg.Database.Path == "" {
		log.Println("[database] transcript cache disabled")
		return &Repositories{}
	}

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		log.Printf("[database] failed to open %s, continuing without cache: %v", cfg.Database.Path, err)
		return &Repositories{}
	}

	return &Repositories{
		Transcript: repository.NewSQLiteTranscriptRepo(db.Conn),
		db:         db,
	}
}

// Close, veritabanı bağlantısını kapatır.
func (r *Repositories) Close() {
	if r.db == nil {
		return
	}
	if err := r.db.Close(); err != nil {
		log.Printf("[database] close error: %v", err)
	}
}
