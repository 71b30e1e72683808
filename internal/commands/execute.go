package commands

import (
	"context"
	"fmt"
)

type Result struct {
	Message string
}

type Handlers struct {
	Sync     func(context.Context, SyncArgs) (Result, error)
	Push     func(context.Context) (Result, error)
	Show     func(context.Context, ShowArgs) (Result, error)
	Resource func(context.Context, ResourceArgs) (Result, error)
	Remind   func(context.Context, RemindArgs) (Result, error)
	Cancel   func(context.Context, TargetArgs) (Result, error)
	Start    func(context.Context, TargetArgs) (Result, error)
	Finish   func(context.Context, TargetArgs) (Result, error)
	Save     func(context.Context, SaveArgs) (Result, error)
	Clear    func(context.Context) (Result, error)
	Help     func(context.Context) (Result, error)
}

func missing(name string) error {
	return &CommandError{Code: ErrCodeHandlerMissing, Message: name + " handler not configured"}
}

func Execute(ctx context.Context, cmd Command, handlers Handlers) (Result, error) {
	switch cmd.Type {
	case TypeSync:
		if handlers.Sync == nil {
			return Result{}, missing("sync")
		}
		return handlers.Sync(ctx, *cmd.Sync)
	case TypePush:
		if handlers.Push == nil {
			return Result{}, missing("push")
		}
		return handlers.Push(ctx)
	case TypeShow:
		if handlers.Show == nil {
			return Result{}, missing("show")
		}
		return handlers.Show(ctx, *cmd.Show)
	case TypeResource:
		if handlers.Resource == nil {
			return Result{}, missing("resource")
		}
		return handlers.Resource(ctx, *cmd.Resource)
	case TypeRemind:
		if handlers.Remind == nil {
			return Result{}, missing("remind")
		}
		return handlers.Remind(ctx, *cmd.Remind)
	case TypeCancel:
		if handlers.Cancel == nil {
			return Result{}, missing("cancel")
		}
		return handlers.Cancel(ctx, *cmd.Target)
	case TypeStart:
		if handlers.Start == nil {
			return Result{}, missing("start")
		}
		return handlers.Start(ctx, *cmd.Target)
	case TypeFinish:
		if handlers.Finish == nil {
			return Result{}, missing("finish")
		}
		return handlers.Finish(ctx, *cmd.Target)
	case TypeSave:
		if handlers.Save == nil {
			return Result{}, missing("save")
		}
		return handlers.Save(ctx, *cmd.Save)
	case TypeClear:
		if handlers.Clear == nil {
			return Result{}, missing("clear")
		}
		return handlers.Clear(ctx)
	case TypeHelp:
		if handlers.Help == nil {
			return Result{}, missing("help")
		}
		return handlers.Help(ctx)
	default:
		return Result{}, &CommandError{Code: ErrCodeUnknownCommand, Message: fmt.Sprintf("unknown command type: %s", cmd.Type)}
	}
}
