package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/nlpodyssey/openai-agents-go/agents"
	"github.com/rs/zerolog"

	"github.com/khanhduypunnd/muse-mcp/pkg/models"
	"github.com/khanhduypunnd/muse-mcp/pkg/tools"
)

// toolCaller is the subset of mcp.Client the agent tools need.
type toolCaller interface {
	CallText(ctx context.Context, name string, args any) (string, error)
}

// buyerStore is the subset of History the agent tools need.
type buyerStore interface {
	Buyer(ctx context.Context, sessionID string) (models.Buyer, error)
	UpdateBuyerField(ctx context.Context, sessionID, field, value string) error
	AddMessage(ctx context.Context, conversationID, role, content string) error
}

// Conversation is the per-request state the agent tools close over.
type Conversation struct {
	SessionID string
	// Phone is set for WhatsApp conversations.
	Phone     string
	MCP       toolCaller
	Store     buyerStore
	Messenger Messenger
	Logger    zerolog.Logger
}

type productVariationsParams struct {
	ProductName string `json:"product_name"`
}

type variationIDParams struct {
	ProductName string `json:"product_name"`
	Option      string `json:"option"`
}

type createOrderParams struct {
	FirstName          string `json:"first_name,omitempty"`
	LastName           string `json:"last_name,omitempty"`
	Address            string `json:"address,omitempty"`
	City               string `json:"city,omitempty"`
	Phone              string `json:"phone,omitempty"`
	Email              string `json:"email,omitempty"`
	PaymentMethod      string `json:"payment_method"`
	PaymentMethodTitle string `json:"payment_method_title"`
	VariationID        int64  `json:"variation_id"`
	Quantity           int    `json:"quantity"`
}

type momoQRParams struct {
	PaymentPageURL string `json:"payment_page_url"`
}

type webSearchParams struct {
	Query string `json:"query"`
}

type updateBuyerFieldParams struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

type sendWhatsAppParams struct {
	Message  string `json:"message"`
	ImageURL string `json:"image_url,omitempty"`
}

// agentTools builds the tool set for one conversation. available lists the
// tool names the MCP server reported; proxies for missing tools are skipped.
func agentTools(conv *Conversation, available map[string]bool) []agents.Tool {
	has := func(name string) bool { return available == nil || available[name] }

	var list []agents.Tool
	if has(tools.GetProductVariations) {
		list = append(list, productVariationsTool(conv))
	}
	if has(tools.GetVariationID) {
		list = append(list, variationIDTool(conv))
	}
	if has(tools.CreateOrder) {
		list = append(list, createOrderTool(conv))
	}
	if has(tools.GetMomoQR) {
		list = append(list, momoQRTool(conv))
	}
	if available[tools.WebSearch] {
		list = append(list, webSearchTool(conv))
	}
	list = append(list, updateBuyerFieldTool(conv))
	if conv.Phone != "" && conv.Messenger != nil && conv.Messenger.Configured() {
		list = append(list, sendWhatsAppTool(conv))
	}
	return list
}

func productVariationsTool(conv *Conversation) agents.FunctionTool {
	return agents.NewFunctionTool(
		tools.GetProductVariations,
		"Tra cứu thông tin chi tiết nước hoa trong shop: các biến thể (dung tích), giá, hình ảnh, link mua, tình trạng còn hàng và mô tả mùi hương.",
		func(ctx context.Context, params productVariationsParams) (string, error) {
			name := strings.TrimSpace(params.ProductName)
			if name == "" {
				return "", fmt.Errorf("product_name is required")
			}
			return conv.MCP.CallText(ctx, tools.GetProductVariations, map[string]any{
				"product_slug": name,
			})
		},
	)
}

func variationIDTool(conv *Conversation) agents.FunctionTool {
	return agents.NewFunctionTool(
		tools.GetVariationID,
		"Lấy ID biến thể theo tên sản phẩm và option (ví dụ 100ml). Bắt buộc gọi trước create_order.",
		func(ctx context.Context, params variationIDParams) (string, error) {
			if strings.TrimSpace(params.ProductName) == "" || strings.TrimSpace(params.Option) == "" {
				return "", fmt.Errorf("product_name and option are required")
			}
			return conv.MCP.CallText(ctx, tools.GetVariationID, map[string]any{
				"product_name": params.ProductName,
				"option":       params.Option,
			})
		},
	)
}

func createOrderTool(conv *Conversation) agents.FunctionTool {
	return agents.NewFunctionTool(
		tools.CreateOrder,
		"Tạo đơn hàng cho một biến thể. Thông tin người mua đã lưu (update_buyer_field) được tự động điền vào các trường để trống.",
		func(ctx context.Context, params createOrderParams) (string, error) {
			args, err := conv.orderArguments(ctx, params)
			if err != nil {
				return "", err
			}
			return conv.MCP.CallText(ctx, tools.CreateOrder, args)
		},
	)
}

// orderArguments merges params with the saved buyer profile. Explicit values
// win; missing required fields are reported by name.
func (conv *Conversation) orderArguments(ctx context.Context, params createOrderParams) (map[string]any, error) {
	if params.VariationID <= 0 {
		return nil, fmt.Errorf("variation_id is required; call %s first", tools.GetVariationID)
	}

	var saved models.Buyer
	if conv.Store != nil {
		b, err := conv.Store.Buyer(ctx, conv.SessionID)
		if err != nil {
			conv.Logger.Warn().Err(err).Msg("failed to load buyer profile")
		}
		saved = b
	}
	if saved.Phone == "" && conv.Phone != "" {
		saved.Phone = plainPhoneNumber(conv.Phone)
	}

	buyer := models.Buyer{
		FirstName: firstNonEmpty(params.FirstName, saved.FirstName),
		LastName:  firstNonEmpty(params.LastName, saved.LastName),
		Address:   firstNonEmpty(params.Address, saved.Address),
		City:      firstNonEmpty(params.City, saved.City),
		Phone:     firstNonEmpty(params.Phone, saved.Phone),
		Email:     firstNonEmpty(params.Email, saved.Email),
	}

	var missing []string
	for _, f := range []struct{ name, value string }{
		{"first_name", buyer.FirstName},
		{"last_name", buyer.LastName},
		{"address", buyer.Address},
		{"city", buyer.City},
		{"phone", buyer.Phone},
		{"email", buyer.Email},
		{"payment_method", params.PaymentMethod},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing buyer information: %s", strings.Join(missing, ", "))
	}

	title := firstNonEmpty(params.PaymentMethodTitle, params.PaymentMethod)
	qty := params.Quantity
	if qty <= 0 {
		qty = 1
	}

	return map[string]any{
		"first_name":           buyer.FirstName,
		"last_name":            buyer.LastName,
		"payment_method":       params.PaymentMethod,
		"payment_method_title": title,
		"address":              buyer.Address,
		"city":                 buyer.City,
		"phone":                buyer.Phone,
		"email":                buyer.Email,
		"product_id":           params.VariationID,
		"quantity":             qty,
	}, nil
}

func momoQRTool(conv *Conversation) agents.FunctionTool {
	return agents.NewFunctionTool(
		tools.GetMomoQR,
		"Lấy URL hình ảnh mã QR MoMo từ link thanh toán trả về bởi create_order.",
		func(ctx context.Context, params momoQRParams) (string, error) {
			if strings.TrimSpace(params.PaymentPageURL) == "" {
				return "", fmt.Errorf("payment_page_url is required")
			}
			return conv.MCP.CallText(ctx, tools.GetMomoQR, map[string]any{
				"payment_page_url": params.PaymentPageURL,
			})
		},
	)
}

func webSearchTool(conv *Conversation) agents.FunctionTool {
	return agents.NewFunctionTool(
		tools.WebSearch,
		"Tìm kiếm trên web, chỉ khi cần thông tin về mua bán, đánh giá hoặc xu hướng thị trường nước hoa.",
		func(ctx context.Context, params webSearchParams) (string, error) {
			if strings.TrimSpace(params.Query) == "" {
				return "", fmt.Errorf("query is required")
			}
			return conv.MCP.CallText(ctx, tools.WebSearch, map[string]any{"query": params.Query})
		},
	)
}

func updateBuyerFieldTool(conv *Conversation) agents.FunctionTool {
	return agents.NewFunctionTool(
		"update_buyer_field",
		"Lưu thông tin người mua ngay khi khách cung cấp. Các field hợp lệ: "+strings.Join(BuyerFieldNames(), ", ")+".",
		func(ctx context.Context, params updateBuyerFieldParams) (string, error) {
			if conv.Store == nil {
				return "", fmt.Errorf("buyer profile not available")
			}
			field := strings.ToLower(strings.TrimSpace(params.Field))
			if err := conv.Store.UpdateBuyerField(ctx, conv.SessionID, field, params.Value); err != nil {
				return "", err
			}
			return fmt.Sprintf("Đã lưu %s.", field), nil
		},
	)
}

func sendWhatsAppTool(conv *Conversation) agents.FunctionTool {
	return agents.NewFunctionTool(
		"send_whatsapp",
		"Gửi tin nhắn WhatsApp cho khách, có thể kèm ảnh (ví dụ ảnh sản phẩm hoặc mã QR MoMo qua image_url).",
		func(ctx context.Context, params sendWhatsAppParams) (string, error) {
			if err := conv.Messenger.Send(conv.Phone, params.Message, params.ImageURL); err != nil {
				return "", err
			}

			content := params.Message
			if params.ImageURL != "" {
				content += " [Ảnh: " + params.ImageURL + "]"
			}
			if conv.Store != nil {
				if err := conv.Store.AddMessage(ctx, conv.SessionID, roleAssistant, content); err != nil {
					conv.Logger.Warn().Err(err).Msg("failed to store sent message")
				}
			}
			return "Đã gửi tin nhắn.", nil
		},
	)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
