// SPDX-License-Identifier: LGPL-2.1-only

package ddiclient

import "fmt"

// BaseURL returns the DDI controller base resource URL:
// {scheme}://{host}/{tenant}/controller/v1/{controllerId}
func (c *Client) BaseURL() string {
	scheme := "http"
	if c.opts.SSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/controller/v1/%s", scheme, c.opts.Server, c.opts.TenantID, c.opts.ControllerID)
}

// URL builds a DDI endpoint URL by appending a printf-style suffix to the
// base resource URL, e.g. URL("/deploymentBase/%s/feedback", id).
func (c *Client) URL(format string, args ...interface{}) string {
	return c.BaseURL() + fmt.Sprintf(format, args...)
}

// ConfigDataURL returns the identify endpoint.
func (c *Client) ConfigDataURL() string {
	return c.URL("/configData")
}

// DeploymentResourceURL returns the deployment detail endpoint for id,
// preserving the resource query string exactly as hawkBit sent it.
func (c *Client) DeploymentResourceURL(id, rawQuery string) string {
	if rawQuery == "" {
		return c.URL("/deploymentBase/%s", id)
	}
	return c.URL("/deploymentBase/%s?%s", id, rawQuery)
}

// DeploymentFeedbackURL returns the feedback endpoint for a deployment id.
func (c *Client) DeploymentFeedbackURL(id string) string {
	return c.URL("/deploymentBase/%s/feedback", id)
}

// CancelResourceURL returns the cancelAction detail endpoint for id.
func (c *Client) CancelResourceURL(id string) string {
	return c.URL("/cancelAction/%s", id)
}

// CancelFeedbackURL returns the cancelAction feedback endpoint for id.
func (c *Client) CancelFeedbackURL(id string) string {
	return c.URL("/cancelAction/%s/feedback", id)
}
