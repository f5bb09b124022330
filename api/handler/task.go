package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/doc-extract/api/middleware"
	"github.com/fyerfyer/doc-extract/api/model"
	"github.com/fyerfyer/doc-extract/pkg/taskqueue"
)

// maxTaskWait 长轮询等待的上限
const maxTaskWait = time.Minute

// TaskHandler 处理任务相关的API请求
type TaskHandler struct {
	queue  taskqueue.Queue // 任务队列
	logger *logrus.Logger  // 日志记录器
}

// NewTaskHandler 创建新的任务处理器
func NewTaskHandler(queue taskqueue.Queue) *TaskHandler {
	return &TaskHandler{
		queue:  queue,
		logger: middleware.GetLogger(),
	}
}

// GetTaskStatus 获取任务状态。wait 参数(如 10s)会等待任务结束后再返回。
// GET /api/tasks/:id
func (h *TaskHandler) GetTaskStatus(c *gin.Context) {
	taskID := c.Param("id")
	if taskID == "" {
		middleware.HandleError(c, middleware.NewValidationError("task ID is required"))
		return
	}

	var (
		task *taskqueue.Task
		err  error
	)
	if waitParam := c.Query("wait"); waitParam != "" {
		wait, perr := time.ParseDuration(waitParam)
		if perr != nil || wait <= 0 {
			middleware.HandleError(c, middleware.NewValidationError("invalid wait duration", waitParam))
			return
		}
		if wait > maxTaskWait {
			wait = maxTaskWait
		}
		task, err = h.queue.WaitForTask(c.Request.Context(), taskID, wait)
		if errors.Is(err, taskqueue.ErrTaskTimeout) || errors.Is(err, context.DeadlineExceeded) {
			// 超时仍返回当前状态
			task, err = h.queue.GetTask(c.Request.Context(), taskID)
		}
	} else {
		task, err = h.queue.GetTask(c.Request.Context(), taskID)
	}
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(taskqueue.NewTaskInfo(task)))
}

// GetRunTasks 获取某次运行的所有任务
// GET /api/runs/:id/tasks
func (h *TaskHandler) GetRunTasks(c *gin.Context) {
	runID := c.Param("id")

	tasks, err := h.queue.GetTasksByRun(c.Request.Context(), runID)
	if err != nil {
		h.logger.WithError(err).WithField("run_id", runID).Error("Failed to get run tasks")
		middleware.HandleError(c, err)
		return
	}

	infos := make([]*taskqueue.TaskInfo, len(tasks))
	for i, task := range tasks {
		infos[i] = taskqueue.NewTaskInfo(task)
	}
	c.JSON(http.StatusOK, model.NewSuccessResponse(gin.H{
		"run_id": runID,
		"tasks":  infos,
	}))
}
