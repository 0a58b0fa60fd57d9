// Package discovery registers the service with a Consul agent.
package discovery

import (
	"fmt"
	"strconv"

	consulapi "github.com/hashicorp/consul/api"
)

type Registration struct {
	Name      string
	Host      string
	Port      int
	HealthURL string
}

func (r Registration) ID() string {
	return r.Name + "-" + r.Host + "-" + strconv.Itoa(r.Port)
}

// agent is the subset of *consulapi.Agent used here.
type agent interface {
	ServiceRegister(service *consulapi.AgentServiceRegistration) error
	ServiceDeregister(serviceID string) error
}

type Client struct {
	agent agent
}

func NewClient(addr string) (*Client, error) {
	cfg := consulapi.DefaultConfig()
	if addr != "" {
		cfg.Address = addr
	}
	c, err := consulapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("consul client: %w", err)
	}
	return &Client{agent: c.Agent()}, nil
}

// Register adds the service with an HTTP health check. The agent drops the
// registration when the check stays critical for a minute.
func (c *Client) Register(r Registration) error {
	reg := &consulapi.AgentServiceRegistration{
		ID:      r.ID(),
		Name:    r.Name,
		Address: r.Host,
		Port:    r.Port,
	}
	if r.HealthURL != "" {
		reg.Check = &consulapi.AgentServiceCheck{
			HTTP:                           r.HealthURL,
			Interval:                       "10s",
			Timeout:                        "2s",
			DeregisterCriticalServiceAfter: "1m",
		}
	}
	if err := c.agent.ServiceRegister(reg); err != nil {
		return fmt.Errorf("consul register %s: %w", reg.ID, err)
	}
	return nil
}

func (c *Client) Deregister(r Registration) error {
	if err := c.agent.ServiceDeregister(r.ID()); err != nil {
		return fmt.Errorf("consul deregister %s: %w", r.ID(), err)
	}
	return nil
}
