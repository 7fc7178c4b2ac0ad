package adapters

import (
	"context"

	autoports "zapflow_backend/internal/automation/ports"
	seqports "zapflow_backend/internal/sequences/ports"
	"zapflow_backend/internal/whatsapp"
)

// MessageSender is the narrow view of the WhatsApp gateway client.
type MessageSender interface {
	Send(ctx context.Context, msg whatsapp.Message) (whatsapp.SendResult, error)
}

// SequenceDispatcher sends sequence step messages through the gateway.
type SequenceDispatcher struct {
	sender MessageSender
}

func NewSequenceDispatcher(sender MessageSender) *SequenceDispatcher {
	return &SequenceDispatcher{sender: sender}
}

// Send delivers one step, attaching media when the step carries it.
func (d *SequenceDispatcher) Send(ctx context.Context, msg seqports.OutboundMessage) (seqports.DispatchResult, error) {
	res, err := d.sender.Send(ctx, whatsapp.Message{
		Phone:    msg.Phone,
		Text:     msg.Text,
		MediaURL: msg.MediaURL,
	})
	if err != nil {
		return seqports.DispatchResult{}, err
	}
	return seqports.DispatchResult{ProviderMessageID: res.MessageID}, nil
}

// AutomationDispatcher sends rule-rendered messages through the gateway.
type AutomationDispatcher struct {
	sender MessageSender
}

func NewAutomationDispatcher(sender MessageSender) *AutomationDispatcher {
	return &AutomationDispatcher{sender: sender}
}

func (d *AutomationDispatcher) SendMessage(ctx context.Context, msg autoports.OutboundMessage) (string, error) {
	res, err := d.sender.Send(ctx, whatsapp.Message{Phone: msg.Phone, Text: msg.Text})
	if err != nil {
		return "", err
	}
	return res.MessageID, nil
}

var (
	_ seqports.MessageDispatcher  = (*SequenceDispatcher)(nil)
	_ autoports.MessageDispatcher = (*AutomationDispatcher)(nil)
)
