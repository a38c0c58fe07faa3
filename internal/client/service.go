// Package client は顧客管理のドメインロジックを提供する。
package client

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/billman/internal/model"
	"github.com/hitoshi/billman/internal/repository"
)

// CreateInput は顧客作成の入力。
type CreateInput struct {
	Name    string
	Email   string
	Address string
	Phone   string
	Company string
}

// Update は顧客の部分更新コマンド。
// nilのフィールドは変更しない（マージセマンティクス）。
// 動的なマップではなく明示的な構造体でフィールドを列挙することで、
// 更新可能なフィールドをコンパイル時に固定する。
type Update struct {
	Name    *string
	Email   *string
	Address *string
	Phone   *string
	Company *string
}

// Service は顧客管理のサービス層。
type Service struct {
	clientRepo repository.ClientRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(clientRepo repository.ClientRepository) *Service {
	return &Service{clientRepo: clientRepo}
}

// List はユーザーの顧客一覧を新しい順で返す。
func (s *Service) List(ctx context.Context, userID string) ([]*model.Client, error) {
	clients, err := s.clientRepo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	return clients, nil
}

// Get は指定IDの顧客を取得する。見つからない場合はCLIENT_NOT_FOUNDを返す。
func (s *Service) Get(ctx context.Context, userID, id string) (*model.Client, error) {
	client, err := s.clientRepo.FindByID(ctx, userID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find client: %w", err)
	}
	if client == nil {
		return nil, model.NewClientNotFoundError(id)
	}
	return client, nil
}

// Create は顧客を作成する。IDと作成日時はサーバー側で付与する。
func (s *Service) Create(ctx context.Context, userID string, input CreateInput) (*model.Client, error) {
	if input.Name == "" {
		return nil, model.NewValidationError("name")
	}

	client := &model.Client{
		ID:        uuid.New().String(),
		UserID:    userID,
		Name:      input.Name,
		Email:     input.Email,
		Address:   input.Address,
		Phone:     input.Phone,
		Company:   input.Company,
		CreatedAt: time.Now(),
	}

	if err := s.clientRepo.Create(ctx, client); err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return client, nil
}

// ApplyUpdate は部分更新コマンドを顧客に適用する。
// nilのフィールドは既存の値を維持する。
func ApplyUpdate(client *model.Client, update Update) {
	if update.Name != nil {
		client.Name = *update.Name
	}
	if update.Email != nil {
		client.Email = *update.Email
	}
	if update.Address != nil {
		client.Address = *update.Address
	}
	if update.Phone != nil {
		client.Phone = *update.Phone
	}
	if update.Company != nil {
		client.Company = *update.Company
	}
}

// UpdateClient は顧客を部分更新する。見つからない場合はCLIENT_NOT_FOUNDを返す。
// 既存の請求書に複製済みのスナップショットには影響しない。
func (s *Service) UpdateClient(ctx context.Context, userID, id string, update Update) (*model.Client, error) {
	client, err := s.clientRepo.FindByID(ctx, userID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find client: %w", err)
	}
	if client == nil {
		return nil, model.NewClientNotFoundError(id)
	}

	ApplyUpdate(client, update)
	if client.Name == "" {
		return nil, model.NewValidationError("name")
	}

	if err := s.clientRepo.Update(ctx, client); err != nil {
		return nil, fmt.Errorf("failed to update client: %w", err)
	}

	return client, nil
}

// Delete は顧客を削除し、参照している請求書から切り離す。
// 存在しないIDに対しては何もしない（冪等）。
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	if err := s.clientRepo.DeleteWithDetach(ctx, userID, id); err != nil {
		return fmt.Errorf("failed to delete client: %w", err)
	}
	return nil
}
