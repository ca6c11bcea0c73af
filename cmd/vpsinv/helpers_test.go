package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/vpsinv/internal/app"
	"github.com/MrSnakeDoc/vpsinv/internal/logger"
)

func registerUser(t *testing.T, email string) {
	t.Helper()
	err := withCore(context.Background(), func(core *app.Core, _ logger.Logger) error {
		_, err := core.Auth.Register(context.Background(), email, "long-enough", "Ops")
		return err
	})
	require.NoError(t, err)
}
