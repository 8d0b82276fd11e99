/**
 * Copyright 2025-present Finlink Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"finlink-client-go/internal/common"
	"finlink-client-go/internal/config"
	"finlink-client-go/internal/store"

	"go.uber.org/zap"
)

func main() {
	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	file := flag.String("file", "", "Path to the image file to upload (required)")
	name := flag.String("name", "", "Object name in the avatar bucket (default: basename of -file)")
	flag.Parse()

	if *file == "" {
		fmt.Fprintln(os.Stderr, "Usage: avatar -file <image> [-name <object-name>]")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	sess, err := services.Cache.Load(ctx)
	if err != nil {
		zap.L().Fatal("No cached session; run the client to sign in first", zap.Error(err))
	}
	if sess.Expired() {
		sess, err = services.Auth.Refresh(ctx, sess.RefreshToken)
		if err != nil {
			zap.L().Fatal("Token refresh failed", zap.Error(err))
		}
		if err := services.Cache.Save(ctx, sess); err != nil {
			zap.L().Warn("Failed to cache refreshed session", zap.Error(err))
		}
	}
	services.SessionStore.SetSession(sess)

	content, err := os.ReadFile(*file)
	if err != nil {
		zap.L().Fatal("Failed to read image file", zap.String("file", *file), zap.Error(err))
	}

	objectName := *name
	if objectName == "" {
		objectName = filepath.Base(*file)
	}

	url, err := services.Avatars.UploadAvatar(ctx, sess.User.Id, objectName, content)
	if err != nil {
		zap.L().Fatal("Avatar upload failed",
			zap.String("file", *file),
			zap.Int("bytes", len(content)),
			zap.Error(err))
	}

	// Persist the new URL on the profile so other clients pick it up.
	if _, err := services.Rows.UpdateProfile(ctx, sess.User.Id, map[string]any{"avatar_url": url}); err != nil {
		if errors.Is(err, store.ErrRowNotFound) {
			zap.L().Warn("No profile row to update; avatar uploaded but not linked")
		} else {
			zap.L().Error("Failed to update profile avatar_url", zap.Error(err))
		}
	}

	zap.L().Info("Avatar uploaded",
		zap.String("user_id", sess.User.Id),
		zap.String("object", objectName),
		zap.Int("bytes", len(content)))
	fmt.Println(url)
}
