package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/storeplane/storeplane/pkg/log"
)

// CheckResult is the outcome of a readiness inspection
type CheckResult struct {
	Ready  bool
	Reason string
}

// Client defines operations against the orchestration platform. The
// templating tool installs and uninstalls releases; the cluster inspection
// tool reports pod and ingress readiness.
type Client interface {
	Install(ctx context.Context, id, chartPath, namespace, host string) error
	Uninstall(ctx context.Context, id, namespace string) error
	CheckPodReadiness(ctx context.Context, namespace string) CheckResult
	CheckIngressReadiness(ctx context.Context, host string) CheckResult
}

// Identifiers are generated internally and restricted to [a-z0-9-.], but
// custom tenant IDs or user-supplied fields may appear later; reject
// anything else before it reaches argv.
var validIdentifier = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]*$`)

// CommandClient implements Client by invoking helm and kubectl
type CommandClient struct {
	runner  Runner
	helm    string
	kubectl string
	logger  zerolog.Logger
}

// NewCommandClient creates a client using the given binaries
func NewCommandClient(runner Runner, helmBin, kubectlBin string) *CommandClient {
	return &CommandClient{
		runner:  runner,
		helm:    helmBin,
		kubectl: kubectlBin,
		logger:  log.WithComponent("orchestrator"),
	}
}

// Install deploys the templated workload chart as a release named after the
// store, in its dedicated namespace, exposed on the per-instance host
func (c *CommandClient) Install(ctx context.Context, id, chartPath, namespace, host string) error {
	if err := checkIdentifiers(id, namespace, host); err != nil {
		return err
	}

	_, stderr, err := c.runner.Run(ctx, c.helm,
		"install", id, chartPath,
		"--namespace", namespace,
		"--create-namespace",
		"--set", "ingress.host="+host,
	)
	if err != nil {
		return commandError("helm install", stderr, err)
	}

	c.logger.Info().Str("store_id", id).Str("namespace", namespace).Msg("release installed")
	return nil
}

// Uninstall removes the release and deletes the namespace. A missing
// release is not an error: the delete path must tolerate partial prior
// cleanup.
func (c *CommandClient) Uninstall(ctx context.Context, id, namespace string) error {
	if err := checkIdentifiers(id, namespace); err != nil {
		return err
	}

	_, stderr, err := c.runner.Run(ctx, c.helm, "uninstall", id, "--namespace", namespace)
	if err != nil && !isNotFound(stderr) {
		return commandError("helm uninstall", stderr, err)
	}

	_, stderr, err = c.runner.Run(ctx, c.kubectl,
		"delete", "namespace", namespace, "--wait=false")
	if err != nil && !isNotFound(stderr) {
		return commandError("namespace delete", stderr, err)
	}

	c.logger.Info().Str("store_id", id).Str("namespace", namespace).Msg("release uninstalled")
	return nil
}

// CheckPodReadiness reports ready when the namespace has at least one pod
// and every pod carries a Ready=True condition
func (c *CommandClient) CheckPodReadiness(ctx context.Context, namespace string) CheckResult {
	if err := checkIdentifiers(namespace); err != nil {
		return CheckResult{Reason: err.Error()}
	}

	stdout, stderr, err := c.runner.Run(ctx, c.kubectl,
		"get", "pods", "--namespace", namespace, "--output", "json")
	if err != nil {
		return CheckResult{Reason: commandError("pod inspection", stderr, err).Error()}
	}

	var list podList
	if err := json.Unmarshal(stdout, &list); err != nil {
		return CheckResult{Reason: fmt.Sprintf("failed to parse pod list: %v", err)}
	}

	if len(list.Items) == 0 {
		return CheckResult{Reason: "No pods found"}
	}

	var notReady []string
	for _, pod := range list.Items {
		if !pod.ready() {
			notReady = append(notReady, pod.Metadata.Name)
		}
	}
	if len(notReady) > 0 {
		return CheckResult{Reason: "Pods not ready: " + strings.Join(notReady, ", ")}
	}
	return CheckResult{Ready: true}
}

// CheckIngressReadiness reports ready when an ingress rule matches the host
// and its status lists at least one load-balancer entry
func (c *CommandClient) CheckIngressReadiness(ctx context.Context, host string) CheckResult {
	if err := checkIdentifiers(host); err != nil {
		return CheckResult{Reason: err.Error()}
	}

	stdout, stderr, err := c.runner.Run(ctx, c.kubectl,
		"get", "ingress", "--all-namespaces", "--output", "json")
	if err != nil {
		return CheckResult{Reason: commandError("ingress inspection", stderr, err).Error()}
	}

	var list ingressList
	if err := json.Unmarshal(stdout, &list); err != nil {
		return CheckResult{Reason: fmt.Sprintf("failed to parse ingress list: %v", err)}
	}

	for _, ing := range list.Items {
		if !ing.matchesHost(host) {
			continue
		}
		if len(ing.Status.LoadBalancer.Ingress) == 0 {
			return CheckResult{Reason: "Ingress has no load balancer IP"}
		}
		return CheckResult{Ready: true}
	}
	return CheckResult{Reason: "Ingress not found"}
}

// podList mirrors the fields consumed from `kubectl get pods -o json`
type podList struct {
	Items []pod `json:"items"`
}

type pod struct {
	Metadata struct {
		Name string `json:"name"`
	} `json:"metadata"`
	Status struct {
		Conditions []podCondition `json:"conditions"`
	} `json:"status"`
}

type podCondition struct {
	Type   string `json:"type"`
	Status string `json:"status"`
}

func (p pod) ready() bool {
	for _, cond := range p.Status.Conditions {
		if cond.Type == "Ready" && cond.Status == "True" {
			return true
		}
	}
	return false
}

// ingressList mirrors the fields consumed from `kubectl get ingress -o json`
type ingressList struct {
	Items []ingress `json:"items"`
}

type ingress struct {
	Spec struct {
		Rules []struct {
			Host string `json:"host"`
		} `json:"rules"`
	} `json:"spec"`
	Status struct {
		LoadBalancer struct {
			Ingress []struct {
				IP       string `json:"ip"`
				Hostname string `json:"hostname"`
			} `json:"ingress"`
		} `json:"loadBalancer"`
	} `json:"status"`
}

func (i ingress) matchesHost(host string) bool {
	for _, rule := range i.Spec.Rules {
		if rule.Host == host {
			return true
		}
	}
	return false
}

func checkIdentifiers(names ...string) error {
	for _, name := range names {
		if !validIdentifier.MatchString(name) {
			return fmt.Errorf("invalid identifier %q", name)
		}
	}
	return nil
}

func commandError(op string, stderr []byte, err error) error {
	msg := strings.TrimSpace(string(stderr))
	if msg == "" {
		msg = err.Error()
	}
	return fmt.Errorf("%s failed: %s", op, msg)
}

func isNotFound(stderr []byte) bool {
	return strings.Contains(strings.ToLower(string(stderr)), "not found")
}
