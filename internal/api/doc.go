// Package api hosts the HTTP server, middleware and handlers for augmentweb.
// Notable routes:
//   - GET / renders the dataset selection form.
//   - POST /user_input accepts the form's multipart submission.
//   - GET /progress renders the static progress page.
//   - GET /v1/submissions/{submission_id} returns a recorded submission.
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
package api
