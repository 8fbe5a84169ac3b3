package main

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"sync"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/myysophia/replay-ingest/internal/app"
	"github.com/myysophia/replay-ingest/internal/ingest"
	"github.com/myysophia/replay-ingest/internal/logger"
	"go.uber.org/zap"
)

type function struct {
	configPath string
	env        string

	once    sync.Once
	handler *ingest.Handler
	err     error
}

// invokedAlias 从调用 ARN 中取别名，未带限定符时返回空
// arn:aws:lambda:region:account:function:name:alias
func invokedAlias(arn string) string {
	parts := strings.Split(arn, ":")
	if len(parts) != 8 {
		return ""
	}
	return parts[7]
}

func (f *function) init(ctx context.Context) (*ingest.Handler, error) {
	f.once.Do(func() {
		// 客户端在多次调用间复用，不能绑定单次调用的 ctx
		a, err := app.New(context.WithoutCancel(ctx), f.configPath, f.env)
		if err != nil {
			f.err = err
			return
		}
		alias := a.Cfg.Ingest.InvokedAlias
		if alias == "" {
			if lc, ok := lambdacontext.FromContext(ctx); ok {
				alias = invokedAlias(lc.InvokedFunctionArn)
			}
		}
		f.handler, f.err = a.Handler(context.WithoutCancel(ctx), alias)
		if f.err == nil {
			logger.Info("处理函数初始化完成", zap.String("alias", alias))
		}
	})
	return f.handler, f.err
}

func (f *function) handle(ctx context.Context, payload json.RawMessage) error {
	handler, err := f.init(ctx)
	if err != nil {
		return err
	}
	return handler.Dispatch(ctx, payload)
}

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs"
	}
	f := &function{configPath: configPath, env: os.Getenv("APP_ENV")}
	lambda.Start(f.handle)
}
