package tools

import (
	"context"
	"log/slog"

	"github.com/shibayu36/salesagent/chart"
	"github.com/shibayu36/salesagent/salesdb"
)

// DefaultMaxChartAttempts はチャートスクリプトの1ターンあたりの最大実行回数
const DefaultMaxChartAttempts = 3

// maxSchemaMismatches に達したらそのターンは確認メッセージで応答する
const maxSchemaMismatches = 2

// Querier は売上データベースへの読み取り専用クエリを実行する
type Querier interface {
	Query(ctx context.Context, query string) (*salesdb.Result, error)
}

// Turn は1回のユーザー入力に対するツール実行の状態を保持する
type Turn struct {
	// ID は成果物のファイル名に使う
	ID               string
	DB               Querier
	Charts           *chart.Runner
	ArtifactsDir     string
	MaxChartAttempts int
	Logger           *slog.Logger

	// LastResult は直近のクエリの結果。直近のクエリが失敗したか0件だった場合はnil
	LastResult *salesdb.Result
	// Artifacts はこのターンで生成したファイルのパス
	Artifacts []string
	// ChartPath は最後に描画したPNGのパス
	ChartPath string

	ClarificationRequested bool

	chartAttempts    int
	lastScript       string
	schemaMismatches int
}

// NeedsClarification はモデルが確認を求めたか、スキーマ不一致が続いた場合にtrueを返す
func (t *Turn) NeedsClarification() bool {
	return t.ClarificationRequested || t.schemaMismatches >= maxSchemaMismatches
}

func (t *Turn) logger() *slog.Logger {
	if t.Logger == nil {
		return slog.Default()
	}
	return t.Logger
}

func (t *Turn) maxChartAttempts() int {
	if t.MaxChartAttempts <= 0 {
		return DefaultMaxChartAttempts
	}
	return t.MaxChartAttempts
}
