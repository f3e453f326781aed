// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// # Key Types
//
//   - Conversation: ordered message history with a derived title
//   - Message: single message with role, content and timestamp
//   - Role: message role enumeration (user, assistant, system)
//
// Messages are values. The only in-place mutation a conversation supports is
// replacing the content of its last message, which is how streamed responses
// are written:
//
//	conv := model.NewConversation()
//	conv.Append(model.NewUserMessage("Hello!"))
//	conv.Append(model.NewAssistantPlaceholder())
//	_ = conv.ReplaceLast("Hi")
//	_ = conv.ReplaceLast("Hi there")
package model
