package validate

import (
	"fmt"

	"github.com/andreyxaxa/Notify-Router/internal/controller/restapi/v1/request"
)

const (
	MaxServiceLen  int = 128
	MaxTopicLen    int = 256
	MaxClientIDLen int = 128
	MaxSubjectLen  int = 998
	MaxBodyLen     int = 256 * 1024
	MaxPayloadSize int = 512 * 1024
	MaxTraceIDLen  int = 128
)

// PublishEvent checks request limits. Semantic checks live in the use-case.
func PublishEvent(p request.PublishEvent) error {
	if p.Service == "" {
		return fmt.Errorf("service is required")
	}
	if len(p.Service) > MaxServiceLen {
		return fmt.Errorf("service length cant be more than %d", MaxServiceLen)
	}

	if p.Topic == "" {
		return fmt.Errorf("topic is required")
	}
	if len(p.Topic) > MaxTopicLen {
		return fmt.Errorf("topic length cant be more than %d", MaxTopicLen)
	}

	if p.ClientID != nil && len(*p.ClientID) > MaxClientIDLen {
		return fmt.Errorf("client_id length cant be more than %d", MaxClientIDLen)
	}

	if p.Subject != nil && len(*p.Subject) > MaxSubjectLen {
		return fmt.Errorf("subject length cant be more than %d", MaxSubjectLen)
	}

	if p.Body != nil && len(*p.Body) > MaxBodyLen {
		return fmt.Errorf("body size cant be more than %d bytes", MaxBodyLen)
	}

	if len(p.Payload) > MaxPayloadSize {
		return fmt.Errorf("payload size cant be more than %d bytes", MaxPayloadSize)
	}

	if p.SagaID != nil && len(*p.SagaID) > MaxTraceIDLen {
		return fmt.Errorf("saga_id length cant be more than %d", MaxTraceIDLen)
	}
	if p.CorrelationID != nil && len(*p.CorrelationID) > MaxTraceIDLen {
		return fmt.Errorf("correlation_id length cant be more than %d", MaxTraceIDLen)
	}

	return nil
}
