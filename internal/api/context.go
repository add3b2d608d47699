package api

import "context"

type contextKey string

const accountIdKey contextKey = "account-id"

func WithAccountId(ctx context.Context, accountId string) context.Context {
	return context.WithValue(ctx, accountIdKey, accountId)
}

func AccountId(ctx context.Context) (string, bool) {
	accountId, ok := ctx.Value(accountIdKey).(string)

	return accountId, ok && accountId != ""
}
