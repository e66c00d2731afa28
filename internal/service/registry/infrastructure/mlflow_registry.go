package infrastructure

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"demandcast/internal/pkg/httpclient"
	"demandcast/internal/service/registry/domain"
)

// MLflowRegistry 通过 MLflow REST API 实现 domain.VersionStore 与 ProductionSwapper，
// 供晋升 CLI 对接已有的 MLflow tracking server
type MLflowRegistry struct {
	client *httpclient.Client
}

func NewMLflowRegistry(client *httpclient.Client) *MLflowRegistry {
	return &MLflowRegistry{client: client}
}

type mlflowModelVersion struct {
	Name              string `json:"name"`
	Version           string `json:"version"`
	CreationTimestamp int64  `json:"creation_timestamp"`
	CurrentStage      string `json:"current_stage"`
	Description       string `json:"description"`
	RunID             string `json:"run_id"`
}

type searchVersionsResponse struct {
	ModelVersions []mlflowModelVersion `json:"model_versions"`
	NextPageToken string               `json:"next_page_token"`
}

type getRunResponse struct {
	Run struct {
		Data struct {
			Metrics []struct {
				Key   string  `json:"key"`
				Value float64 `json:"value"`
			} `json:"metrics"`
		} `json:"data"`
	} `json:"run"`
}

func (r *MLflowRegistry) GetVersions(ctx context.Context, modelName string, stages ...domain.Stage) ([]domain.ModelVersion, error) {
	filter, err := nameFilter(modelName)
	if err != nil {
		return nil, err
	}
	var (
		out       []domain.ModelVersion
		pageToken string
	)
	for {
		q := url.Values{}
		q.Set("filter", filter)
		q.Set("max_results", "200")
		if pageToken != "" {
			q.Set("page_token", pageToken)
		}
		var resp searchVersionsResponse
		if err := r.client.GetJSON(ctx, "/api/2.0/mlflow/model-versions/search", q, &resp); err != nil {
			return nil, errors.Wrapf(domain.ErrRegistry, "search model versions: %v", err)
		}
		for _, mv := range resp.ModelVersions {
			stage, err := domain.ParseStage(mv.CurrentStage)
			if err != nil {
				continue
			}
			if len(stages) > 0 && !containsStage(stages, stage) {
				continue
			}
			out = append(out, domain.ModelVersion{
				ModelName:   mv.Name,
				VersionID:   mv.Version,
				RunID:       mv.RunID,
				Stage:       stage,
				Description: mv.Description,
				CreatedAt:   time.UnixMilli(mv.CreationTimestamp),
			})
		}
		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	for i := range out {
		if out[i].RunID == "" {
			continue
		}
		// 列表中的指标不可用时保持 nil
		if m, err := r.GetRunMetrics(ctx, out[i].RunID); err == nil {
			out[i].Metrics = m
		}
	}
	domain.SortNewestFirst(out)
	return out, nil
}

// nameFilter 生成 search 接口的 name 过滤表达式；MLflow 的过滤语法不支持转义，
// 名称同时含单双引号时直接拒绝
func nameFilter(modelName string) (string, error) {
	switch {
	case !strings.Contains(modelName, "'"):
		return fmt.Sprintf("name='%s'", modelName), nil
	case !strings.Contains(modelName, `"`):
		return fmt.Sprintf(`name="%s"`, modelName), nil
	default:
		return "", errors.Wrapf(domain.ErrRegistry, "model name %q cannot be quoted in an MLflow filter", modelName)
	}
}

// GetRunMetrics 读取 run 的最新指标；MLflow 训练脚本可能把 R² 记为 r2_score
func (r *MLflowRegistry) GetRunMetrics(ctx context.Context, runID string) (map[string]float64, error) {
	var resp getRunResponse
	err := r.client.GetJSON(ctx, "/api/2.0/mlflow/runs/get", url.Values{"run_id": {runID}}, &resp)
	if err != nil {
		var statusErr *httpclient.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == 404 {
			return nil, errors.Wrapf(domain.ErrNotFound, "run %s", runID)
		}
		return nil, errors.Wrapf(domain.ErrRegistry, "get run %s: %v", runID, err)
	}
	metrics := make(map[string]float64, len(resp.Run.Data.Metrics))
	for _, m := range resp.Run.Data.Metrics {
		metrics[m.Key] = m.Value
	}
	if _, ok := metrics["r2"]; !ok {
		if v, ok := metrics["r2_score"]; ok {
			metrics["r2"] = v
		}
	}
	return metrics, nil
}

type transitionRequest struct {
	Name                    string `json:"name"`
	Version                 string `json:"version"`
	Stage                   string `json:"stage"`
	ArchiveExistingVersions bool   `json:"archive_existing_versions"`
}

func (r *MLflowRegistry) TransitionStage(ctx context.Context, modelName, versionID string, to domain.Stage) error {
	current, err := r.getVersion(ctx, modelName, versionID)
	if err != nil {
		return err
	}
	if !current.CanTransitionTo(to) {
		return errors.Wrapf(domain.ErrIllegalTransition, "%s v%s: %s -> %s", modelName, versionID, current, to)
	}
	return r.transition(ctx, modelName, versionID, to, false)
}

func (r *MLflowRegistry) UpdateDescription(ctx context.Context, modelName, versionID, description string) error {
	body := map[string]string{"name": modelName, "version": versionID, "description": description}
	if err := r.client.PostJSON(ctx, "/api/2.0/mlflow/model-versions/update", body, nil); err != nil {
		return errors.Wrapf(domain.ErrRegistry, "update description: %v", err)
	}
	return nil
}

// SwapProduction 使用 archive_existing_versions 让服务端在一次调用中完成归档
func (r *MLflowRegistry) SwapProduction(ctx context.Context, modelName, versionID string) ([]string, error) {
	current, err := r.getVersion(ctx, modelName, versionID)
	if err != nil {
		return nil, err
	}
	if !current.CanTransitionTo(domain.StageProduction) {
		return nil, errors.Wrapf(domain.ErrIllegalTransition, "%s v%s: %s -> %s", modelName, versionID, current, domain.StageProduction)
	}
	prod, err := r.GetVersions(ctx, modelName, domain.StageProduction)
	if err != nil {
		return nil, err
	}
	if err := r.transition(ctx, modelName, versionID, domain.StageProduction, true); err != nil {
		return nil, err
	}
	domain.SortOldestFirst(prod)
	archived := make([]string, 0, len(prod))
	for _, v := range prod {
		archived = append(archived, v.VersionID)
	}
	return archived, nil
}

func (r *MLflowRegistry) transition(ctx context.Context, modelName, versionID string, to domain.Stage, archiveExisting bool) error {
	req := transitionRequest{
		Name:                    modelName,
		Version:                 versionID,
		Stage:                   string(to),
		ArchiveExistingVersions: archiveExisting,
	}
	if err := r.client.PostJSON(ctx, "/api/2.0/mlflow/model-versions/transition-stage", req, nil); err != nil {
		return errors.Wrapf(domain.ErrRegistry, "transition %s v%s to %s: %v", modelName, versionID, to, err)
	}
	return nil
}

func (r *MLflowRegistry) getVersion(ctx context.Context, modelName, versionID string) (domain.Stage, error) {
	var resp struct {
		ModelVersion mlflowModelVersion `json:"model_version"`
	}
	q := url.Values{"name": {modelName}, "version": {versionID}}
	if err := r.client.GetJSON(ctx, "/api/2.0/mlflow/model-versions/get", q, &resp); err != nil {
		var statusErr *httpclient.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == 404 {
			return "", errors.Wrapf(domain.ErrNotFound, "%s v%s", modelName, versionID)
		}
		return "", errors.Wrapf(domain.ErrRegistry, "get model version: %v", err)
	}
	if resp.ModelVersion.Version == "" {
		return "", errors.Wrapf(domain.ErrNotFound, "%s v%s", modelName, versionID)
	}
	return domain.ParseStage(resp.ModelVersion.CurrentStage)
}
