// cmd/leaderboard prints the leaderboard from the configured store.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jason-s-yu/memoria/internal/config"
	"github.com/jason-s-yu/memoria/internal/leaderboard"
	"github.com/jason-s-yu/memoria/internal/models"
	"github.com/jason-s-yu/memoria/internal/store"
	_ "github.com/joho/godotenv/autoload"
	"github.com/pterm/pterm"
)

func main() {
	limit := flag.Int("n", leaderboard.DefaultTopN, "number of entries to show")
	all := flag.Bool("all", false, "show the full history")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	backend, err := store.Open(ctx, cfg)
	if err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
	defer backend.Close()

	var entries []models.RankingEntry
	title := fmt.Sprintf("TOP %d", *limit)
	if *all {
		entries, err = backend.Rankings.AllRankings(ctx)
		title = "HISTORY"
	} else {
		entries, err = backend.Rankings.TopRankings(ctx, *limit)
	}
	if err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}

	pterm.DefaultSection.Println(title)
	if len(entries) == 0 {
		pterm.Info.Println("No rounds recorded yet.")
		return
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(tableData(entries)).Render(); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}

func tableData(entries []models.RankingEntry) pterm.TableData {
	data := pterm.TableData{{"#", "Name", "Score", "Time", "Result", "When"}}
	for i, e := range entries {
		result := pterm.LightRed("timeout")
		if e.Victory {
			result = pterm.LightGreen("win")
		}
		data = append(data, []string{
			fmt.Sprint(i + 1),
			e.Name,
			fmt.Sprint(e.Score),
			fmt.Sprintf("%ds", e.ElapsedSeconds),
			result,
			e.Timestamp.Local().Format("2006-01-02 15:04"),
		})
	}
	return data
}
